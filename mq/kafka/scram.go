package kafka

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/xdg-go/scram"
)

/* ========================================================================
 * SCRAM 认证支持
 * ======================================================================== */

// HashGeneratorFcn SCRAM hash 生成器
type HashGeneratorFcn func() hash.Hash

// SHA256 SHA256 hash 生成器
var SHA256 HashGeneratorFcn = sha256.New

// SHA512 SHA512 hash 生成器
var SHA512 HashGeneratorFcn = sha512.New

// XDGSCRAMClient sarama.SCRAMClient 实现
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	HashGeneratorFcn HashGeneratorFcn
}

// Begin 开始 SCRAM 认证会话
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	mechanism := scram.SHA256
	if x.HashGeneratorFcn != nil && x.HashGeneratorFcn().Size() == sha512.Size {
		mechanism = scram.SHA512
	}
	x.Client, err = mechanism.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step 执行 SCRAM 认证步骤
func (x *XDGSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

// Done 判断认证是否完成
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}
