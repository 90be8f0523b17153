package mozscape

import (
	"crypto"
	_ "crypto/sha1" // 注册 crypto.SHA1
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureTTL 签名有效期。远端不接受太远的过期时间。
const SignatureTTL = 300 * time.Second

// signingMethodHS1 复用 jwt 的 HMAC 实现，只是把哈希换成 SHA-1。
var signingMethodHS1 = &jwt.SigningMethodHMAC{Name: "HS1", Hash: crypto.SHA1}

// Credentials 在客户端生命周期内不变。
type Credentials struct {
	AccessID  string
	SecretKey string
}

// Signature 只属于一次请求，不要缓存复用。
type Signature struct {
	Expires int64  // unix 秒
	Value   string // 标准 base64，未做 URL 编码
}

type Signer struct {
	creds Credentials
	now   func() time.Time
}

func NewSigner(creds Credentials) *Signer {
	return &Signer{
		creds: creds,
		now:   time.Now,
	}
}

// Sign 以当前时间生成签名，每次发请求前都要重新调用。
func (s *Signer) Sign() (Signature, error) {
	return s.SignAt(s.now())
}

// SignAt 签名内容为 "AccessID\nExpires"，HMAC-SHA1 后取原始摘要做 base64。
func (s *Signer) SignAt(t time.Time) (Signature, error) {
	expires := t.Add(SignatureTTL).Unix()
	stringToSign := s.creds.AccessID + "\n" + strconv.FormatInt(expires, 10)

	digest, err := signingMethodHS1.Sign(stringToSign, []byte(s.creds.SecretKey))
	if err != nil {
		return Signature{}, fmt.Errorf("sign request: %w", err)
	}
	return Signature{
		Expires: expires,
		Value:   base64.StdEncoding.EncodeToString(digest),
	}, nil
}
