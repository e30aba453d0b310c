package execution

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	json "github.com/goccy/go-json"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

const clobAuthMessage = "This message attests that I control the given wallet"

// DeriveAPICreds creates or retrieves L2 API credentials from the CLOB
// using L1 authentication: an EIP-712 ClobAuth signature over the
// signing key. The same key always derives the same credentials.
func DeriveAPICreds(ctx context.Context, baseURL, privateKeyHex string) (*types.Credential, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cast public key to ECDSA")
	}
	address := crypto.PubkeyToAddress(*publicKey)

	timestamp := time.Now().Unix()
	signature, err := signClobAuth(privateKey, address.Hex(), timestamp)
	if err != nil {
		return nil, fmt.Errorf("sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(baseURL, "/")+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address.Hex())
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", "0")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("derive API key (status %d): %s", resp.StatusCode, string(body))
	}

	var wire struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &types.Credential{
		ID:         address.Hex(),
		APIKey:     wire.APIKey,
		Secret:     wire.Secret,
		Passphrase: wire.Passphrase,
	}, nil
}

// signClobAuth signs the EIP-712 ClobAuth attestation the CLOB accepts
// as L1 authentication.
func signClobAuth(privateKey *ecdsa.PrivateKey, address string, timestamp int64) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": []apitypes.Type{
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    "ClobAuthDomain",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(polygonChainID),
		},
		Message: map[string]interface{}{
			"address":   address,
			"timestamp": fmt.Sprintf("%d", timestamp),
			"nonce":     "0",
			"message":   clobAuthMessage,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("hash message: %w", err)
	}

	digest := crypto.Keccak256Hash([]byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash))))

	signature, err := crypto.Sign(digest.Bytes(), privateKey)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	if signature[64] < 27 {
		signature[64] += 27
	}

	return "0x" + fmt.Sprintf("%x", signature), nil
}
