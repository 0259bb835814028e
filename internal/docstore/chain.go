package docstore

import (
	"context"
	"errors"

	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/logger"
)

// 文档注释：多级文档存储
// 背景：读路径按顺序查找，首个命中即返回（通常内存在前、Redis 在后）；写路径写入全部层级。
// 约束：某一层拒绝凭证文档（ErrCredentialBearing）不视为失败；至少一层写入成功才返回 nil。
type Chain struct {
	list []Store
}

func NewChain(list ...Store) *Chain {
	out := make([]Store, 0, len(list))
	for _, s := range list {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Chain{list: out}
}

func (c *Chain) Get(ctx context.Context, session string, gen uint64) (document.Document, error) {
	var lastErr error = ErrNotFound
	for _, s := range c.list {
		doc, err := s.Get(ctx, session, gen)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			logger.L().Warn("docstore_get_failed", "session", session, "gen", gen, "err", err)
			lastErr = err
		}
	}
	return document.Document{}, lastErr
}

func (c *Chain) Put(ctx context.Context, doc document.Document) error {
	stored := false
	var errs []error
	for _, s := range c.list {
		err := s.Put(ctx, doc)
		switch {
		case err == nil:
			stored = true
		case errors.Is(err, ErrCredentialBearing):
		default:
			logger.L().Warn("docstore_put_failed", "session", doc.Session, "gen", doc.Generation, "err", err)
			errs = append(errs, err)
		}
	}
	if stored {
		return nil
	}
	if len(errs) == 0 {
		return ErrCredentialBearing
	}
	return errors.Join(errs...)
}

func (c *Chain) Forget(ctx context.Context, session string) error {
	var errs []error
	for _, s := range c.list {
		if err := s.Forget(ctx, session); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
