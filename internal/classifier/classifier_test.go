package classifier

import (
	"testing"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAccountID 用确定性字节构造账户，绕开手写 strkey 校验和
func testAccountID(seed byte) xdr.AccountId {
	var key xdr.Uint256
	for i := range key {
		key[i] = seed
	}
	return xdr.AccountId{
		Type:    xdr.PublicKeyTypePublicKeyTypeEd25519,
		Ed25519: &key,
	}
}

func testMuxedAccount(seed byte) xdr.MuxedAccount {
	var key xdr.Uint256
	for i := range key {
		key[i] = seed
	}
	return xdr.MuxedAccount{
		Type:    xdr.CryptoKeyTypeKeyTypeEd25519,
		Ed25519: &key,
	}
}

func testAsset(code string, issuerSeed byte) xdr.Asset {
	var code4 xdr.AssetCode4
	copy(code4[:], code)
	return xdr.Asset{
		Type: xdr.AssetTypeAssetTypeCreditAlphanum4,
		AlphaNum4: &xdr.AlphaNum4{
			AssetCode: code4,
			Issuer:    testAccountID(issuerSeed),
		},
	}
}

func paymentEnvelope(t *testing.T, destSeed byte, asset xdr.Asset) string {
	t.Helper()
	env := xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1: &xdr.TransactionV1Envelope{
			Tx: xdr.Transaction{
				SourceAccount: testMuxedAccount(0x01),
				Fee:           100,
				SeqNum:        1,
				Operations: []xdr.Operation{
					{
						Body: xdr.OperationBody{
							Type: xdr.OperationTypePayment,
							PaymentOp: &xdr.PaymentOp{
								Destination: testMuxedAccount(destSeed),
								Asset:       asset,
								Amount:      10_000_000,
							},
						},
					},
				},
			},
		},
	}
	b64, err := xdr.MarshalBase64(env)
	require.NoError(t, err)
	return b64
}

func emptyMeta(t *testing.T) string {
	t.Helper()
	meta := xdr.TransactionMeta{V: 2, V2: &xdr.TransactionMetaV2{}}
	b64, err := xdr.MarshalBase64(meta)
	require.NoError(t, err)
	return b64
}

func balanceID(seed byte) xdr.ClaimableBalanceId {
	var hash xdr.Hash
	for i := range hash {
		hash[i] = seed
	}
	return xdr.ClaimableBalanceId{
		Type: xdr.ClaimableBalanceIdTypeClaimableBalanceIdTypeV0,
		V0:   &hash,
	}
}

func stateChange(id xdr.ClaimableBalanceId, asset xdr.Asset, amount int64, claimantSeeds ...byte) xdr.LedgerEntryChange {
	claimants := make([]xdr.Claimant, 0, len(claimantSeeds))
	for _, seed := range claimantSeeds {
		claimants = append(claimants, xdr.Claimant{
			Type: xdr.ClaimantTypeClaimantTypeV0,
			V0: &xdr.ClaimantV0{
				Destination: testAccountID(seed),
				Predicate: xdr.ClaimPredicate{
					Type: xdr.ClaimPredicateTypeClaimPredicateUnconditional,
				},
			},
		})
	}
	return xdr.LedgerEntryChange{
		Type: xdr.LedgerEntryChangeTypeLedgerEntryState,
		State: &xdr.LedgerEntry{
			Data: xdr.LedgerEntryData{
				Type: xdr.LedgerEntryTypeClaimableBalance,
				ClaimableBalance: &xdr.ClaimableBalanceEntry{
					BalanceId: id,
					Claimants: claimants,
					Asset:     asset,
					Amount:    xdr.Int64(amount),
				},
			},
		},
	}
}

func removedChange(id xdr.ClaimableBalanceId) xdr.LedgerEntryChange {
	return xdr.LedgerEntryChange{
		Type: xdr.LedgerEntryChangeTypeLedgerEntryRemoved,
		Removed: &xdr.LedgerKey{
			Type: xdr.LedgerEntryTypeClaimableBalance,
			ClaimableBalance: &xdr.LedgerKeyClaimableBalance{
				BalanceId: id,
			},
		},
	}
}

func metaWithChanges(t *testing.T, before []xdr.LedgerEntryChange, opChanges []xdr.LedgerEntryChange) string {
	t.Helper()
	meta := xdr.TransactionMeta{
		V: 2,
		V2: &xdr.TransactionMetaV2{
			TxChangesBefore: before,
			Operations: []xdr.OperationMeta{
				{Changes: opChanges},
			},
		},
	}
	b64, err := xdr.MarshalBase64(meta)
	require.NoError(t, err)
	return b64
}

func TestClassifyPayment(t *testing.T) {
	asset := testAsset("ABC", 0x10)
	body := paymentEnvelope(t, 0x20, asset)

	result, err := Classify(body, emptyMeta(t))
	require.NoError(t, err)

	require.Len(t, result.Payments, 1)
	assert.Equal(t, "ABC", result.Payments[0].AssetCode)
	assert.Equal(t, testAccountID(0x10).Address(), result.Payments[0].AssetIssuer)
	dest := testMuxedAccount(0x20)
	assert.Equal(t, dest.Address(), result.Payments[0].Destination)
	assert.Empty(t, result.Claims)
}

func TestClassifyFeeBumpUnwrapsInnerTransaction(t *testing.T) {
	asset := testAsset("ABC", 0x10)
	inner := xdr.TransactionV1Envelope{
		Tx: xdr.Transaction{
			SourceAccount: testMuxedAccount(0x01),
			Fee:           100,
			SeqNum:        1,
			Operations: []xdr.Operation{
				{
					Body: xdr.OperationBody{
						Type: xdr.OperationTypePayment,
						PaymentOp: &xdr.PaymentOp{
							Destination: testMuxedAccount(0x20),
							Asset:       asset,
							Amount:      1,
						},
					},
				},
			},
		},
	}
	env := xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTxFeeBump,
		FeeBump: &xdr.FeeBumpTransactionEnvelope{
			Tx: xdr.FeeBumpTransaction{
				FeeSource: testMuxedAccount(0x02),
				Fee:       200,
				InnerTx: xdr.FeeBumpTransactionInnerTx{
					Type: xdr.EnvelopeTypeEnvelopeTypeTx,
					V1:   &inner,
				},
			},
		},
	}
	body, err := xdr.MarshalBase64(env)
	require.NoError(t, err)

	result, err := Classify(body, emptyMeta(t))
	require.NoError(t, err)
	require.Len(t, result.Payments, 1)
	dest := testMuxedAccount(0x20)
	assert.Equal(t, dest.Address(), result.Payments[0].Destination)
}

func TestClassifyUnsupportedEnvelopeIsEmptyNotError(t *testing.T) {
	env := xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTxV0,
		V0: &xdr.TransactionV0Envelope{
			Tx: xdr.TransactionV0{
				SourceAccountEd25519: xdr.Uint256{0x01},
				Fee:                  100,
				SeqNum:               1,
			},
		},
	}
	body, err := xdr.MarshalBase64(env)
	require.NoError(t, err)

	result, err := Classify(body, emptyMeta(t))
	require.NoError(t, err)
	assert.Empty(t, result.Payments)
	assert.Empty(t, result.Claims)
}

func TestClassifyGarbageEnvelopeFails(t *testing.T) {
	_, err := Classify("not-xdr", emptyMeta(t))
	assert.Error(t, err)
}

func TestClassifyNativePaymentSkipped(t *testing.T) {
	native := xdr.Asset{Type: xdr.AssetTypeAssetTypeNative}
	body := paymentEnvelope(t, 0x20, native)

	result, err := Classify(body, emptyMeta(t))
	require.NoError(t, err)
	assert.Empty(t, result.Payments)
}

func TestClassifyClaimedBalance(t *testing.T) {
	asset := testAsset("QST", 0x10)
	id := balanceID(0xAA)

	// 创建出现在 txChangesBefore，移除出现在操作 changes 里
	meta := metaWithChanges(t,
		[]xdr.LedgerEntryChange{stateChange(id, asset, 5000, 0x30)},
		[]xdr.LedgerEntryChange{removedChange(id)},
	)
	body := paymentEnvelope(t, 0x99, testAsset("ZZZ", 0x99))

	result, err := Classify(body, meta)
	require.NoError(t, err)

	require.Len(t, result.Claims, 1)
	assert.Equal(t, testAccountID(0x30).Address(), result.Claims[0].Account)
	assert.Equal(t, "QST", result.Claims[0].AssetCode)
	assert.Equal(t, testAccountID(0x10).Address(), result.Claims[0].AssetIssuer)
	assert.Equal(t, int64(5000), result.Claims[0].Amount)
}

func TestClassifyRemovalWithoutCreationYieldsNoClaim(t *testing.T) {
	meta := metaWithChanges(t,
		nil,
		[]xdr.LedgerEntryChange{removedChange(balanceID(0xBB))},
	)
	body := paymentEnvelope(t, 0x99, testAsset("ZZZ", 0x99))

	result, err := Classify(body, meta)
	require.NoError(t, err)
	assert.Empty(t, result.Claims)
}

func TestClassifyClaimantResolutionPicksPairedClaimant(t *testing.T) {
	asset := testAsset("QST", 0x10)
	id := balanceID(0xCC)

	// 多个领取人时取第一个在列表里能自配对的
	meta := metaWithChanges(t,
		[]xdr.LedgerEntryChange{stateChange(id, asset, 100, 0x40, 0x41)},
		[]xdr.LedgerEntryChange{removedChange(id)},
	)
	body := paymentEnvelope(t, 0x99, testAsset("ZZZ", 0x99))

	result, err := Classify(body, meta)
	require.NoError(t, err)
	require.Len(t, result.Claims, 1)
	assert.Equal(t, testAccountID(0x40).Address(), result.Claims[0].Account)
}

func TestCollectChangesOrder(t *testing.T) {
	id := balanceID(0xDD)
	asset := testAsset("QST", 0x10)

	meta := xdr.TransactionMeta{
		V: 2,
		V2: &xdr.TransactionMetaV2{
			TxChangesBefore: []xdr.LedgerEntryChange{stateChange(id, asset, 1, 0x30)},
			Operations:      []xdr.OperationMeta{{Changes: []xdr.LedgerEntryChange{removedChange(id)}}},
			TxChangesAfter:  []xdr.LedgerEntryChange{},
		},
	}
	changes := collectChanges(meta)
	require.Len(t, changes, 2)
	assert.Equal(t, xdr.LedgerEntryChangeTypeLedgerEntryState, changes[0].Type)
	assert.Equal(t, xdr.LedgerEntryChangeTypeLedgerEntryRemoved, changes[1].Type)
}
