package observe

import (
	"encoding/json"
	"strings"

	xerrors "TrustMesh/internal/errors"
)

// Kind 区分观察消息的种类。
type Kind string

const (
	// KindHandshake 表示一次入站握手请求。
	KindHandshake Kind = "handshake"
	// KindReport 表示对某个已知对端的新几何观测。
	KindReport Kind = "report"
)

// Message 是队列中流转的观察消息。向量以稀疏分值映射携带。
type Message struct {
	Kind        Kind               `json:"kind"`
	PeerID      string             `json:"peer_id"`
	DisplayName string             `json:"display_name"`
	Scores      map[string]float64 `json:"scores"`
	Timestamp   int64              `json:"timestamp"`
	Version     string             `json:"version"`
}

const (
	CodeMessageInvalid xerrors.Code = "OBSERVE_MESSAGE_INVALID"
)

func init() {
	xerrors.Register(CodeMessageInvalid, xerrors.Attributes{
		Message:   "observation message invalid",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}

// ParseMessage 解析并校验一条观察消息。
func ParseMessage(body string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, xerrors.Wrap(CodeMessageInvalid, err, "解析观察消息失败")
	}
	if strings.TrimSpace(msg.PeerID) == "" {
		return nil, xerrors.New(CodeMessageInvalid, "观察消息缺少 peer_id")
	}
	switch msg.Kind {
	case KindHandshake, KindReport:
	default:
		return nil, xerrors.New(CodeMessageInvalid, "未知的观察消息种类: "+string(msg.Kind))
	}
	return &msg, nil
}

// Encode 序列化消息，供生产方投递。
func (m *Message) Encode() (string, error) {
	content, err := json.Marshal(m)
	if err != nil {
		return "", xerrors.Wrap(CodeMessageInvalid, err, "编码观察消息失败")
	}
	return string(content), nil
}
