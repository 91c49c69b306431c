package tls

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_RequiresCertificate(t *testing.T) {
	_, err := NewConfigBuilder().Build()
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestBuild_VersionRange(t *testing.T) {
	cert := testCertificate(t)

	_, err := NewConfigBuilder().WithCertificate(cert).
		WithMinVersion(tls.VersionTLS13).
		WithMaxVersion(tls.VersionTLS12).
		Build()
	assert.ErrorIs(t, err, ErrInvalidVersion)

	_, err = NewConfigBuilder().WithCertificate(cert).WithMinVersion(0x0999).Build()
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestBuild_RejectsInsecureSuite(t *testing.T) {
	insecure := tls.InsecureCipherSuites()
	require.NotEmpty(t, insecure)

	_, err := NewConfigBuilder().
		WithCertificate(testCertificate(t)).
		WithCipherSuites([]uint16{insecure[0].ID}).
		Build()
	assert.ErrorIs(t, err, ErrInvalidCipherSuite)
}

func TestBuild_Defaults(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)

	assert.Equal(t, uint16(tls.VersionTLS12), sc.MinVersion())
	assert.Zero(t, sc.MaxVersion())
	assert.Equal(t, tls.NoClientCert, sc.ClientAuth())
	assert.Equal(t, DefaultHandshakeTimeout, sc.HandshakeTimeout())
	assert.NoError(t, sc.Verify())
	assert.Len(t, sc.FingerprintHex(), 64)

	der, err := sc.LeafPublicKeyDER()
	require.NoError(t, err)
	assert.NotEmpty(t, der)
}

// TestSharedConfig_GettersReturnCopies 修改访问器返回值不影响配置
func TestSharedConfig_GettersReturnCopies(t *testing.T) {
	suite, err := CipherSuiteByName("TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256")
	require.NoError(t, err)

	sc, err := NewConfigBuilder().
		WithCertificate(testCertificate(t)).
		WithCipherSuites([]uint16{suite}).
		WithNextProtos([]string{"h2"}).
		Build()
	require.NoError(t, err)

	protos := sc.NextProtos()
	protos[0] = "evil"
	suites := sc.CipherSuites()
	suites[0] = 0
	leaf := sc.LeafDER()
	leaf[0] ^= 0xff

	assert.Equal(t, []string{"h2"}, sc.NextProtos())
	assert.Equal(t, []uint16{suite}, sc.CipherSuites())
	assert.NoError(t, sc.Verify())
}

// TestSharedConfig_BuilderReuseDoesNotLeak 构建后继续修改构建器不影响已构建配置
func TestSharedConfig_BuilderReuseDoesNotLeak(t *testing.T) {
	protos := []string{"h2"}
	b := NewConfigBuilder().WithCertificate(testCertificate(t)).WithNextProtos(protos)
	sc, err := b.Build()
	require.NoError(t, err)

	protos[0] = "changed"
	b.WithMinVersion(tls.VersionTLS13)

	assert.Equal(t, []string{"h2"}, sc.NextProtos())
	assert.Equal(t, uint16(tls.VersionTLS12), sc.MinVersion())
	assert.NoError(t, sc.Verify())
}

// TestSharedConfig_VerifyDetectsMutation 直接修改底层配置会被指纹发现
func TestSharedConfig_VerifyDetectsMutation(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)
	sc.std.MinVersion = tls.VersionTLS10
	assert.ErrorIs(t, sc.Verify(), ErrConfigMutated)
}

// TestSharedConfig_ConcurrentReads 并发读取期间配置保持不变
func TestSharedConfig_ConcurrentReads(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)
	want := sc.Fingerprint()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = sc.MinVersion()
				_ = sc.NextProtos()
				_ = sc.CipherSuites()
				_ = sc.LeafDER()
				sc.Retain().Release()
				if err := sc.Verify(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Verify failed: %v", err)
	}
	assert.Equal(t, want, sc.Fingerprint())
	assert.Zero(t, sc.Refs())
}

func TestSharedConfig_PublishOnce(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)
	assert.False(t, sc.Published())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sc.Publish() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, sc.Published())
}

func TestSharedConfig_Refs(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)
	sc.Retain()
	sc.Retain()
	assert.Equal(t, int64(2), sc.Refs())
	sc.Release()
	sc.Release()
	assert.Zero(t, sc.Refs())
}

func TestFingerprint_DiffersByPolicy(t *testing.T) {
	cert := testCertificate(t)
	a, err := NewConfigBuilder().WithCertificate(cert).Build()
	require.NoError(t, err)
	b, err := NewConfigBuilder().WithCertificate(cert).WithMinVersion(tls.VersionTLS13).Build()
	require.NoError(t, err)
	c, err := NewConfigBuilder().WithCertificate(cert).WithHandshakeTimeout(time.Second).Build()
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"1.2", tls.VersionTLS12, false},
		{"TLS1.3", tls.VersionTLS13, false},
		{"tls 1.1", tls.VersionTLS11, false},
		{"v1.0", tls.VersionTLS10, false},
		{"ssl3", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidVersion, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCipherSuiteByName(t *testing.T) {
	id, err := CipherSuiteByName("TLS_AES_128_GCM_SHA256")
	require.NoError(t, err)
	assert.Equal(t, tls.TLS_AES_128_GCM_SHA256, id)

	_, err = CipherSuiteByName("TLS_RSA_WITH_RC4_128_SHA")
	assert.ErrorIs(t, err, ErrInvalidCipherSuite)
}

func TestSharedConfig_Sign(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)
	digest := sha256.Sum256([]byte("evidence"))

	sig, err := sc.Sign(digest[:])
	require.NoError(t, err)

	pub, ok := sc.chain[0].PublicKey.(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.True(t, ecdsa.VerifyASN1(pub, digest[:], sig))

	pkix, err := sc.LeafPublicKeyDER()
	require.NoError(t, err)
	assert.NotEmpty(t, pkix)
}
