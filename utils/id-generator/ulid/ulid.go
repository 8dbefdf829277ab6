// Package ulid 提供按时间排序的唯一标识符(ULID)生成与解析。
//
// ULID 在毫秒内单调递增,字符串形式可按字典序排序,适合做请求 ID、
// 追踪 ID 等需要时间局部性的标识。与 UUID 等长(128 bit),提供互转。
package ulid

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator 生成单调递增的 ULID,可安全并发使用。
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator 构造一个独立的生成器。
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate 以当前时间生成一个 ULID。
func (g *Generator) Generate() ulid.ULID {
	return g.GenerateWithTime(time.Now())
}

// GenerateWithTime 以指定时间生成一个 ULID。
func (g *Generator) GenerateWithTime(t time.Time) ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

// GenerateString 生成一个 ULID 并返回其 26 字符字符串形式。
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateBatch 生成 n 个严格递增的 ULID。
func (g *Generator) GenerateBatch(n int) []ulid.ULID {
	ids := make([]ulid.ULID, n)
	for i := range ids {
		ids[i] = g.Generate()
	}
	return ids
}

var defaultGenerator = NewGenerator()

// Generate 使用进程级默认生成器生成一个 ULID。
func Generate() ulid.ULID {
	return defaultGenerator.Generate()
}

// GenerateString 使用进程级默认生成器生成一个 ULID 字符串。
func GenerateString() string {
	return defaultGenerator.GenerateString()
}

// GenerateWithTime 使用进程级默认生成器以指定时间生成 ULID。
func GenerateWithTime(t time.Time) ulid.ULID {
	return defaultGenerator.GenerateWithTime(t)
}

// Parse 解析 ULID 字符串,大小写不敏感。
func Parse(s string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("ulid: parse %q: %w", s, err)
	}
	return id, nil
}

// MustParse 解析 ULID 字符串,失败时 panic,仅用于常量。
func MustParse(s string) ulid.ULID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Time 返回 ULID 的时间戳部分。
func Time(id ulid.ULID) time.Time {
	return ulid.Time(id.Time())
}

// IsZero 判断是否为零值 ULID。
func IsZero(id ulid.ULID) bool {
	return id == ulid.ULID{}
}

// ToUUID 将 ULID 转为同字节的 UUID,便于与仅接受 UUID 的系统互通。
func ToUUID(id ulid.ULID) uuid.UUID {
	return uuid.UUID(id)
}

// FromUUID 将 UUID 转为同字节的 ULID。
func FromUUID(u uuid.UUID) ulid.ULID {
	return ulid.ULID(u)
}

// ToUUIDString 返回 ULID 的 UUID 字符串形式。
func ToUUIDString(id ulid.ULID) string {
	return ToUUID(id).String()
}

// FromUUIDString 解析 UUID 字符串并返回对应 ULID。
func FromUUIDString(s string) (ulid.ULID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("ulid: parse uuid %q: %w", s, err)
	}
	return FromUUID(u), nil
}
