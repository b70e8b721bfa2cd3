package ledger

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func selector(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

func TestLedgerPacking(t *testing.T) {
	paymentID := common.HexToHash("0xab00cdef0123456789abcdef0123456789abcdef0123456789abcdef01234567")
	payer := common.HexToAddress("0x1111111111111111111111111111111111111111")
	payee := common.HexToAddress("0x2222222222222222222222222222222222222222")
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	t.Run("registerRequirement", func(t *testing.T) {
		data, err := ledgerABI.Pack("registerRequirement", [32]byte(paymentID), token, big.NewInt(10000), payee)
		if err != nil {
			t.Fatalf("Pack() error = %v", err)
		}
		want := selector("registerRequirement(bytes32,address,uint256,address)")
		if got := hex.EncodeToString(data[:4]); got != want {
			t.Errorf("selector = %s, want %s", got, want)
		}
		if len(data) != 4+4*32 {
			t.Errorf("calldata length = %d, want %d", len(data), 4+4*32)
		}
	})

	t.Run("settle", func(t *testing.T) {
		data, err := ledgerABI.Pack("settle", [32]byte(paymentID), payer, big.NewInt(10000), token)
		if err != nil {
			t.Fatalf("Pack() error = %v", err)
		}
		want := selector("settle(bytes32,address,uint256,address)")
		if got := hex.EncodeToString(data[:4]); got != want {
			t.Errorf("selector = %s, want %s", got, want)
		}
	})

	t.Run("settled query and result", func(t *testing.T) {
		data, err := ledgerABI.Pack("settled", [32]byte(paymentID))
		if err != nil {
			t.Fatalf("Pack() error = %v", err)
		}
		want := selector("settled(bytes32)")
		if got := hex.EncodeToString(data[:4]); got != want {
			t.Errorf("selector = %s, want %s", got, want)
		}

		// A true return is a single word ending in 1.
		word := make([]byte, 32)
		word[31] = 1
		results, err := ledgerABI.Unpack("settled", word)
		if err != nil {
			t.Fatalf("Unpack() error = %v", err)
		}
		if settled, ok := results[0].(bool); !ok || !settled {
			t.Errorf("settled = %v, want true", results[0])
		}
	})
}
