// Package schema 封装事件负载的 JSON Schema 编译与校验
package schema

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compiledEntry 编译结果与定义指纹
// 版本号删除后可能被同号新定义复用,指纹不符时重新编译而不是沿用旧结果
type compiledEntry struct {
	fingerprint [32]byte
	schema      *jsonschema.Schema
}

var (
	compiledMu    sync.RWMutex
	compiledCache = make(map[string]compiledEntry)
)

// Compile 编译 Schema 定义 (Draft 2020-12)
// 定义非法时返回错误,注册表在接受新版本前先行编译把关
func Compile(tenantID, eventType string, version int, definition []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	url := fmt.Sprintf("https://timeline.schemas.local/%s/%s/v%d.schema.json", tenantID, eventType, version)
	if err := c.AddResource(url, bytes.NewReader(definition)); err != nil {
		return nil, fmt.Errorf("load schema definition: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema definition: %w", err)
	}
	return compiled, nil
}

// compileCached 查缓存拿编译结果,未命中或定义变更时重新编译
// Schema 一经注册不可修改,同一 (租户, 类型, 版本, 定义) 的编译结果可长期复用,
// 每次追加事件都重新编译在热路径上开销过大
func compileCached(tenantID, eventType string, version int, definition []byte) (*jsonschema.Schema, error) {
	key := fmt.Sprintf("%s/%s/v%d", tenantID, eventType, version)
	fp := sha256.Sum256(definition)

	compiledMu.RLock()
	entry, ok := compiledCache[key]
	compiledMu.RUnlock()
	if ok && entry.fingerprint == fp {
		return entry.schema, nil
	}

	compiled, err := Compile(tenantID, eventType, version, definition)
	if err != nil {
		return nil, err
	}

	compiledMu.Lock()
	compiledCache[key] = compiledEntry{fingerprint: fp, schema: compiled}
	compiledMu.Unlock()
	return compiled, nil
}

// Validate 校验 payload 是否符合 Schema 定义
func Validate(tenantID, eventType string, version int, definition []byte, payload map[string]interface{}) error {
	compiled, err := compileCached(tenantID, eventType, version, definition)
	if err != nil {
		return err
	}

	if err := compiled.Validate(payload); err != nil {
		return fmt.Errorf("payload validation failed against schema v%d: %w", version, err)
	}
	return nil
}
