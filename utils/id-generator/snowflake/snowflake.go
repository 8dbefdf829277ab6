// Package snowflake 提供分布式唯一 ID 生成器。
//
// ID 为 64 位整数,按时间大致有序,适合做数据库主键。节点 ID 通过
// SNOWFLAKE_NODE_ID 环境变量配置,同一集群内必须互不相同。
package snowflake

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	// EnvNodeID 节点 ID 环境变量名。
	EnvNodeID = "SNOWFLAKE_NODE_ID"

	// DefaultNodeID 未配置时使用的节点 ID,仅适合单机或开发环境。
	DefaultNodeID int64 = 0

	// MaxNodeID snowflake 默认布局下的节点 ID 上限(10 bit)。
	MaxNodeID int64 = 1023
)

// ConfigError 表示节点 ID 配置非法。
type ConfigError struct {
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("snowflake: invalid node id %q: %s", e.Value, e.Reason)
}

// Generator 封装一个固定节点 ID 的 snowflake 节点。
type Generator struct {
	node *snowflake.Node
}

// NewGenerator 使用指定节点 ID 构造生成器。
func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, &ConfigError{
			Value:  strconv.FormatInt(nodeID, 10),
			Reason: fmt.Sprintf("must be in [0, %d]", MaxNodeID),
		}
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake: create node: %w", err)
	}
	return &Generator{node: node}, nil
}

// NewGeneratorFromEnv 从 SNOWFLAKE_NODE_ID 读取节点 ID 构造生成器,
// 未设置时使用 DefaultNodeID。
func NewGeneratorFromEnv() (*Generator, error) {
	raw, ok := os.LookupEnv(EnvNodeID)
	if !ok || raw == "" {
		return NewGenerator(DefaultNodeID)
	}
	nodeID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &ConfigError{Value: raw, Reason: "not an integer"}
	}
	return NewGenerator(nodeID)
}

// Generate 生成一个新 ID。
func (g *Generator) Generate() int64 {
	return g.node.Generate().Int64()
}

// GenerateString 生成一个新 ID 并以十进制字符串返回。
func (g *Generator) GenerateString() string {
	return g.node.Generate().String()
}

var (
	defaultGenerator *Generator
	defaultOnce      sync.Once
)

func defaultGen() *Generator {
	defaultOnce.Do(func() {
		gen, err := NewGeneratorFromEnv()
		if err != nil {
			// 配置错误时回退到默认节点,保证调用方总能拿到 ID。
			gen, _ = NewGenerator(DefaultNodeID)
		}
		defaultGenerator = gen
	})
	return defaultGenerator
}

// Generate 使用进程级默认生成器生成一个新 ID。
func Generate() int64 {
	return defaultGen().Generate()
}

// GenerateString 使用进程级默认生成器生成一个新 ID 字符串。
func GenerateString() string {
	return defaultGen().GenerateString()
}

// Parse 解析十进制字符串形式的 ID。
func Parse(s string) (int64, error) {
	id, err := snowflake.ParseString(s)
	if err != nil {
		return 0, fmt.Errorf("snowflake: parse %q: %w", s, err)
	}
	return id.Int64(), nil
}
