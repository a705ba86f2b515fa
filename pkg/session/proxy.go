package session

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/marmos91/dittorepo/pkg/stream"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// Proxy addresses one servant owned by one session. It is what a client holds
// instead of the servant itself.
type Proxy struct {
	SessionID string      `json:"session_id"`
	ServantID uint32      `json:"servant_id"`
	Kind      stream.Kind `json:"kind"`
}

// proxyWire is the XDR layout of a proxy token:
//
//	struct proxy {
//	    unsigned int version;
//	    string       session<>;
//	    unsigned int servant;
//	    string       kind<>;
//	};
type proxyWire struct {
	Version uint32
	Session string
	Servant uint32
	Kind    string
}

const proxyWireVersion = 1

// Token encodes the proxy as an opaque URL-safe string.
func (p Proxy) Token() (string, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &proxyWire{
		Version: proxyWireVersion,
		Session: p.SessionID,
		Servant: p.ServantID,
		Kind:    string(p.Kind),
	}); err != nil {
		return "", fmt.Errorf("encode proxy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// String returns the token, or a readable form if encoding fails.
func (p Proxy) String() string {
	tok, err := p.Token()
	if err != nil {
		return fmt.Sprintf("%s/%d(%s)", p.SessionID, p.ServantID, p.Kind)
	}
	return tok
}

// ParseProxy decodes a token produced by Proxy.Token.
func ParseProxy(token string) (Proxy, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Proxy{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var w proxyWire
	if _, err := xdr.Unmarshal(bytes.NewReader(raw), &w); err != nil {
		return Proxy{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if w.Version != proxyWireVersion {
		return Proxy{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidToken, w.Version)
	}
	if w.Session == "" || w.Servant == 0 {
		return Proxy{}, fmt.Errorf("%w: incomplete proxy", ErrInvalidToken)
	}

	return Proxy{SessionID: w.Session, ServantID: w.Servant, Kind: stream.Kind(w.Kind)}, nil
}
