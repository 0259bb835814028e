// 包 docstore：按（会话, 代号）保存已生成的渲染文档，供渲染端按周期拉取
package docstore

import (
	"context"
	"errors"
	"strconv"

	"github.com/dbsahdlks/INgress/internal/document"
)

var (
	ErrNotFound = errors.New("docstore: document not found")
	// ErrCredentialBearing：内嵌凭证的文档拒绝写入持久化后端
	ErrCredentialBearing = errors.New("docstore: document embeds a credential")
)

// Store：文档存储接口
type Store interface {
	Get(ctx context.Context, session string, gen uint64) (document.Document, error)
	Put(ctx context.Context, doc document.Document) error
	Forget(ctx context.Context, session string) error
}

const keyPrefix = "ingress:doc:"

// Key：存储键，形如 ingress:doc:<session>:<gen>
func Key(session string, gen uint64) string {
	return keyPrefix + session + ":" + strconv.FormatUint(gen, 10)
}
