// Package attest 为共享 TLS 配置签发证明证据
//
// 宿主 enclave 用证据向外部证明自己正在使用哪一份不可变的 TLS 策略。
// 证据不经过任何网络协议，由调用方自行传递。
//
// # 格式
//
// 证据是一个 CMW（Conceptual Message Wrapper）monad，媒体类型为
// MediaType，值为 CBOR 编码的 envelope：
//
//	envelope = { 1: claims (bstr, 确定性 CBOR), 2: signature (bstr) }
//	claims   = { 1: label, 2: nonce, 3: fingerprint, 4: public key (PKIX DER),
//	             5: min version, 6: max version, 7: ALPN, 8: issued at, 9: binding }
//
// binding = HKDF-SHA256(secret=fingerprint, salt=nonce, info=label||0x00||public key)，
// signature 是叶子证书私钥对 SHA-256(claims) 的签名。
//
// # 使用
//
//	issuer, _ := attest.NewIssuer(shared, cfg.Attestation)
//	evidence, _ := issuer.Issue(nonce)
//	claims, err := attest.Verify(evidence, attest.VerifyOptions{
//	    Nonce: nonce,
//	    Label: "tlsworker",
//	    Fingerprint: expected,
//	})
package attest
