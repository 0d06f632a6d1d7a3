// Package hash 提供事件链哈希计算
//
// 哈希输入是事件六个逻辑字段的规范化串联,必须跨进程、跨语言产生
// 字节一致的结果: payload 采用 RFC 8785 (JCS) 规范化 JSON,时间统一为
// UTC RFC 3339 纳秒精度,无前驱用固定哨兵 GENESIS 表示。
package hash

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/HSPiira/timeline-sub000/internal/model"
)

// Algorithm 哈希算法接口
// 新算法的接入不需要修改 Service 本身
type Algorithm interface {
	Sum(data string) string
	Name() string
}

// SHA256 SHA-256 算法实现
type SHA256 struct{}

// Sum 计算 SHA-256 十六进制摘要
func (SHA256) Sum(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Name 算法名称
func (SHA256) Name() string { return "sha256" }

// SHA512 SHA-512 算法实现
type SHA512 struct{}

// Sum 计算 SHA-512 十六进制摘要
func (SHA512) Sum(data string) string {
	h := sha512.Sum512([]byte(data))
	return hex.EncodeToString(h[:])
}

// Name 算法名称
func (SHA512) Name() string { return "sha512" }

// Service 哈希服务
// 纯计算,无 I/O,可并发使用
type Service struct {
	algorithm Algorithm
}

// NewService 创建哈希服务,算法为 nil 时默认 SHA-256
func NewService(algorithm Algorithm) *Service {
	if algorithm == nil {
		algorithm = SHA256{}
	}
	return &Service{algorithm: algorithm}
}

// CanonicalJSON 将任意值转换为 RFC 8785 规范化 JSON 字符串
// 键按 UTF-8 字节序排序,无多余空白,数字格式确定
func CanonicalJSON(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return string(canonical), nil
}

// ComputeHash 计算事件内容哈希
// previousHash 为 nil 表示创世事件,使用 GENESIS 哨兵参与计算
func (s *Service) ComputeHash(
	subjectID string,
	eventType string,
	schemaVersion int,
	eventTime time.Time,
	payload map[string]interface{},
	previousHash *string,
) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}

	prev := model.GenesisHash
	if previousHash != nil && *previousHash != "" {
		prev = *previousHash
	}

	base := strings.Join([]string{
		subjectID,
		eventType,
		strconv.Itoa(schemaVersion),
		eventTime.UTC().Format(time.RFC3339Nano),
		canonical,
		prev,
	}, "|")

	return s.algorithm.Sum(base), nil
}

// ComputeHashRaw 基于已序列化的 payload 计算哈希
// 校验服务重算历史事件哈希时使用,避免往返反序列化引入的歧义
func (s *Service) ComputeHashRaw(
	subjectID string,
	eventType string,
	schemaVersion int,
	eventTime time.Time,
	rawPayload []byte,
	previousHash *string,
) (string, error) {
	canonical, err := jcs.Transform(rawPayload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	prev := model.GenesisHash
	if previousHash != nil && *previousHash != "" {
		prev = *previousHash
	}

	base := strings.Join([]string{
		subjectID,
		eventType,
		strconv.Itoa(schemaVersion),
		eventTime.UTC().Format(time.RFC3339Nano),
		string(canonical),
		prev,
	}, "|")

	return s.algorithm.Sum(base), nil
}
