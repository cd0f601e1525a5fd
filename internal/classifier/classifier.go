package classifier

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stellar/go/xdr"
)

// Payment 一笔 payment 操作的归因要素
type Payment struct {
	Destination string
	AssetCode   string
	AssetIssuer string
}

// ClaimedBalance 一次 claimable balance 领取的归因要素
type ClaimedBalance struct {
	Account     string
	AssetCode   string
	AssetIssuer string
	Amount      int64
}

// Classification 一条交易记录归一化后的归因集合
type Classification struct {
	Payments []Payment
	Claims   []ClaimedBalance
}

// createdBalance 第一遍扫描时登记的 claimable balance 创建信息
type createdBalance struct {
	asset     xdr.Asset
	amount    int64
	claimants []xdr.Claimant
}

// Classify 解码不透明的 XDR envelope/meta，提取 payment 和 claim 归因。
// 只支持普通交易和 fee-bump 交易（解包到内层交易）两种信封形状，
// 其它形状产生空分类（记日志跳过），不算错误
func Classify(bodyXDR, metaXDR string) (Classification, error) {
	var out Classification

	var envelope xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(bodyXDR, &envelope); err != nil {
		return out, fmt.Errorf("decode envelope: %w", err)
	}

	var ops []xdr.Operation
	switch envelope.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if envelope.V1 != nil {
			ops = envelope.V1.Tx.Operations
		}
	case xdr.EnvelopeTypeEnvelopeTypeTxFeeBump:
		// 解包到内层交易
		if envelope.FeeBump != nil && envelope.FeeBump.Tx.InnerTx.V1 != nil {
			ops = envelope.FeeBump.Tx.InnerTx.V1.Tx.Operations
		}
	default:
		logrus.Warnf("不支持的信封类型: %v，跳过", envelope.Type)
		return out, nil
	}

	for _, op := range ops {
		if op.Body.Type != xdr.OperationTypePayment {
			continue
		}
		payment := op.Body.MustPaymentOp()
		code, issuer, ok := extractAsset(payment.Asset)
		if !ok {
			continue // native XLM 不可能是徽章资产
		}
		out.Payments = append(out.Payments, Payment{
			Destination: payment.Destination.Address(),
			AssetCode:   code,
			AssetIssuer: issuer,
		})
	}

	var meta xdr.TransactionMeta
	if err := xdr.SafeUnmarshalBase64(metaXDR, &meta); err != nil {
		return out, fmt.Errorf("decode meta: %w", err)
	}
	out.Claims = extractClaims(meta)

	return out, nil
}

// extractClaims 对合并后的 ledger-entry change 列表做两遍扫描：
// 第一遍登记所有 claimable balance 创建（state change），
// 第二遍对每个移除（removed change）查找第一遍的登记并解析领取人。
// 两遍都按文档顺序遍历同一个合并列表，同一 meta 内先建后领也能命中
func extractClaims(meta xdr.TransactionMeta) []ClaimedBalance {
	changes := collectChanges(meta)

	tracked := make(map[string]createdBalance)
	for _, change := range changes {
		if change.Type != xdr.LedgerEntryChangeTypeLedgerEntryState || change.State == nil {
			continue
		}
		entry, ok := change.State.Data.GetClaimableBalance()
		if !ok {
			continue
		}
		id, ok := balanceIDHex(entry.BalanceId)
		if !ok {
			continue
		}
		tracked[id] = createdBalance{
			asset:     entry.Asset,
			amount:    int64(entry.Amount),
			claimants: entry.Claimants,
		}
	}

	var claims []ClaimedBalance
	for _, change := range changes {
		if change.Type != xdr.LedgerEntryChangeTypeLedgerEntryRemoved || change.Removed == nil {
			continue
		}
		key, ok := change.Removed.GetClaimableBalance()
		if !ok {
			continue
		}
		id, ok := balanceIDHex(key.BalanceId)
		if !ok {
			continue
		}
		balance, ok := tracked[id]
		if !ok {
			continue // 没观察到创建，无法归因
		}
		claimant, ok := resolveClaimant(balance.claimants)
		if !ok {
			continue
		}
		code, issuer, ok := extractAsset(balance.asset)
		if !ok {
			continue
		}
		claims = append(claims, ClaimedBalance{
			Account:     claimant,
			AssetCode:   code,
			AssetIssuer: issuer,
			Amount:      balance.amount,
		})
	}
	return claims
}

// collectChanges 按 txChangesBefore → 各操作 changes → txChangesAfter
// 的顺序拼接 change 列表（V1 只有一个 TxChanges，充当 before 的角色）
func collectChanges(meta xdr.TransactionMeta) []xdr.LedgerEntryChange {
	var changes []xdr.LedgerEntryChange
	appendOps := func(ops []xdr.OperationMeta) {
		for _, opMeta := range ops {
			changes = append(changes, opMeta.Changes...)
		}
	}
	switch meta.V {
	case 0:
		if meta.Operations != nil {
			appendOps(*meta.Operations)
		}
	case 1:
		changes = append(changes, meta.V1.TxChanges...)
		appendOps(meta.V1.Operations)
	case 2:
		changes = append(changes, meta.V2.TxChangesBefore...)
		appendOps(meta.V2.Operations)
		changes = append(changes, meta.V2.TxChangesAfter...)
	case 3:
		changes = append(changes, meta.V3.TxChangesBefore...)
		appendOps(meta.V3.Operations)
		changes = append(changes, meta.V3.TxChangesAfter...)
	default:
		logrus.Warnf("未知的 TransactionMeta 版本: %d", meta.V)
	}
	return changes
}

// resolveClaimant 解析领取人：取第一个其 destination 也出现在
// claimants 列表里的条目（保留上游实现的自配对判定方式）
func resolveClaimant(claimants []xdr.Claimant) (string, bool) {
	for _, c := range claimants {
		if c.Type != xdr.ClaimantTypeClaimantTypeV0 || c.V0 == nil {
			continue
		}
		dest := c.V0.Destination.Address()
		for _, tc := range claimants {
			if tc.Type == xdr.ClaimantTypeClaimantTypeV0 && tc.V0 != nil &&
				tc.V0.Destination.Address() == dest {
				return dest, true
			}
		}
	}
	return "", false
}

// balanceIDHex 把 32 字节 balance id 编码成 hex 字符串
func balanceIDHex(id xdr.ClaimableBalanceId) (string, bool) {
	if id.Type != xdr.ClaimableBalanceIdTypeClaimableBalanceIdTypeV0 || id.V0 == nil {
		return "", false
	}
	hash := *id.V0
	return hex.EncodeToString(hash[:]), true
}

// extractAsset 取资产 code/issuer，native 资产返回 false
func extractAsset(asset xdr.Asset) (code, issuer string, ok bool) {
	switch asset.Type {
	case xdr.AssetTypeAssetTypeCreditAlphanum4:
		code = strings.TrimRight(string(asset.AlphaNum4.AssetCode[:]), "\x00")
		issuer = asset.AlphaNum4.Issuer.Address()
		return code, issuer, true
	case xdr.AssetTypeAssetTypeCreditAlphanum12:
		code = strings.TrimRight(string(asset.AlphaNum12.AssetCode[:]), "\x00")
		issuer = asset.AlphaNum12.Issuer.Address()
		return code, issuer, true
	default:
		return "", "", false
	}
}
