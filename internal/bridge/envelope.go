package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EnvelopeVersion：渲染端消息信封版本，文档脚本中的 v 字段
const EnvelopeVersion = 1

// Kind：信封类型
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindLog     Kind = "log"
	KindTimeout Kind = "timeout"
)

var ErrUnrecognized = errors.New("bridge: unrecognized message")

// Envelope：渲染端 -> 宿主的结构化消息
// 背景：替代按文本子串（“成功”/“错误”）判定的做法；宿主按 Kind 分支。
type Envelope struct {
	V       int    `json:"v"`
	Kind    Kind   `json:"kind"`
	Gen     uint64 `json:"gen"`
	Session string `json:"session,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Decode：解析原始消息
// 约束：非 JSON、版本不符或类型未知时返回 ErrUnrecognized（包装原因），调用方记录并丢弃，不改变状态。
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	if e.V != EnvelopeVersion {
		return Envelope{}, fmt.Errorf("%w: version %d", ErrUnrecognized, e.V)
	}
	switch e.Kind {
	case KindSuccess, KindError, KindLog, KindTimeout:
	default:
		return Envelope{}, fmt.Errorf("%w: kind %q", ErrUnrecognized, e.Kind)
	}
	return e, nil
}

func (e Envelope) Encode() ([]byte, error) {
	if e.V == 0 {
		e.V = EnvelopeVersion
	}
	return json.Marshal(e)
}
