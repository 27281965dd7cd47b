package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"ticket-ledger-engine/codec"
	"ticket-ledger-engine/logger"

	"github.com/algorand/go-algorand-sdk/client/algod"
	"github.com/algorand/go-algorand-sdk/crypto"
	"github.com/algorand/go-algorand-sdk/mnemonic"
	"github.com/algorand/go-algorand-sdk/transaction"
)

// Algorand settles actions by anchoring them on chain: the action payload
// rides in the note field of a payment transaction signed by the operator
// account, the transaction id is the handle, and a confirmed round means the
// action settled. The engine assumes nothing about the chain beyond this.
type Algorand struct {
	operator   *Account
	apiAddress string
	apiKey     string
	minFee     uint64
	noteKey    []byte
}

func NewAlgorand(operator *Account, apiAddress, apiKey string, minFee uint64, noteKey []byte) *Algorand {
	return &Algorand{
		operator:   operator,
		apiAddress: apiAddress,
		apiKey:     apiKey,
		minFee:     minFee,
		noteKey:    noteKey,
	}
}

func (a *Algorand) Submit(ctx context.Context, action Action) (Handle, error) {
	algodClient, err := a.client()
	if err != nil {
		return "", Transient(fmt.Errorf("submit: error connecting to algod: %w", err))
	}

	txParams, err := algodClient.SuggestedParams()
	if err != nil {
		return "", Transient(fmt.Errorf("submit: error getting suggested tx params: %w", err))
	}

	note, err := a.encodeNote(action)
	if err != nil {
		return "", fmt.Errorf("submit: error encoding action note: %w", err)
	}

	genID := txParams.GenesisID
	genHash := txParams.GenesisHash
	firstValidRound := txParams.LastRound
	lastValidRound := firstValidRound + 1000

	// zero-amount self payment; the note is the payload being settled
	txn, err := transaction.MakePaymentTxnWithFlatFee(
		a.operator.AccountAddress, a.operator.AccountAddress,
		a.minFee, 0, firstValidRound, lastValidRound, note, "", genID, genHash)
	if err != nil {
		return "", fmt.Errorf("submit: error creating transaction: %w", err)
	}

	privateKey, err := mnemonic.ToPrivateKey(a.operator.SecurityPassphrase)
	if err != nil {
		return "", fmt.Errorf("submit: error getting private key from mnemonic: %w", err)
	}

	txId, bytes, err := crypto.SignTransaction(privateKey, txn)
	if err != nil {
		return "", fmt.Errorf("submit: failed to sign transaction: %w", err)
	}
	logger.Infof(ctx, "submit: signed txid: %s for action %s", txId, action.Nonce)

	txHeaders := append([]*algod.Header{}, &algod.Header{Key: "Content-Type", Value: "application/x-binary"})
	sendResponse, err := algodClient.SendRawTransaction(bytes, txHeaders...)
	if err != nil {
		return "", Transient(fmt.Errorf("submit: failed to send transaction: %w", err))
	}
	logger.Infof(ctx, "submit: submitted transaction %s", sendResponse.TxID)

	return Handle(sendResponse.TxID), nil
}

func (a *Algorand) PollStatus(ctx context.Context, h Handle) (Status, error) {
	algodClient, err := a.client()
	if err != nil {
		return Status{}, Transient(fmt.Errorf("pollStatus: error connecting to algod: %w", err))
	}

	pt, err := algodClient.PendingTransactionInformation(string(h))
	if err != nil {
		return Status{}, Transient(fmt.Errorf("pollStatus: error getting pending info for %s: %w", h, err))
	}

	if pt.ConfirmedRound > 0 {
		return Status{State: StateConfirmed, Reference: string(h)}, nil
	}
	if pt.PoolError != "" {
		return Status{State: StateFailed, Reference: string(h), Reason: pt.PoolError}, nil
	}
	return Status{State: StatePending, Reference: string(h)}, nil
}

func (a *Algorand) client() (algod.Client, error) {
	var headers []*algod.Header
	headers = append(headers, &algod.Header{Key: "X-API-Key", Value: a.apiKey})
	return algod.MakeClientWithHeaders(a.apiAddress, "", headers)
}

func (a *Algorand) encodeNote(action Action) ([]byte, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	if action.Encrypted && len(a.noteKey) > 0 {
		sealed, err := codec.Encrypt(a.noteKey, payload)
		if err != nil {
			return nil, err
		}
		return []byte(sealed), nil
	}
	return payload, nil
}
