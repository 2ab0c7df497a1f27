package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwire/ethwire/hexutil"
)

// Block tags understood by the execution API.
const (
	TagLatest    = "latest"
	TagEarliest  = "earliest"
	TagPending   = "pending"
	TagSafe      = "safe"
	TagFinalized = "finalized"
)

// BlockNumberOrTag selects a block by quantity, named tag or hash. The zero
// value marshals as "latest".
type BlockNumberOrTag struct {
	Number *hexutil.Quantity
	Tag    string
	Hash   *common.Hash
}

func BlockNumber(n uint64) BlockNumberOrTag {
	return BlockNumberOrTag{Number: hexutil.QuantityFromUint64(n)}
}

func BlockTag(tag string) BlockNumberOrTag {
	return BlockNumberOrTag{Tag: tag}
}

func BlockHash(h common.Hash) BlockNumberOrTag {
	return BlockNumberOrTag{Hash: &h}
}

func validBlockTag(tag string) bool {
	switch tag {
	case TagLatest, TagEarliest, TagPending, TagSafe, TagFinalized:
		return true
	}
	return false
}

func (b BlockNumberOrTag) MarshalJSON() ([]byte, error) {
	switch {
	case b.Hash != nil:
		return json.Marshal(map[string]common.Hash{"blockHash": *b.Hash})
	case b.Number != nil:
		return json.Marshal(b.Number)
	case b.Tag != "":
		if !validBlockTag(b.Tag) {
			return nil, fmt.Errorf("rpc: unknown block tag %q", b.Tag)
		}
		return json.Marshal(b.Tag)
	default:
		return json.Marshal(TagLatest)
	}
}

func (b *BlockNumberOrTag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if validBlockTag(s) {
			*b = BlockNumberOrTag{Tag: s}
			return nil
		}
		var q hexutil.Quantity
		if err := q.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("rpc: invalid block selector %q", s)
		}
		*b = BlockNumberOrTag{Number: &q}
		return nil
	}
	var obj struct {
		BlockHash   *common.Hash      `json:"blockHash"`
		BlockNumber *hexutil.Quantity `json:"blockNumber"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("rpc: invalid block selector: %w", err)
	}
	switch {
	case obj.BlockHash != nil:
		*b = BlockNumberOrTag{Hash: obj.BlockHash}
	case obj.BlockNumber != nil:
		*b = BlockNumberOrTag{Number: obj.BlockNumber}
	default:
		return fmt.Errorf("rpc: block selector object needs blockHash or blockNumber")
	}
	return nil
}

// Log is one emitted contract event as returned by eth_getLogs and carried
// in receipts.
type Log struct {
	Address     common.Address  `json:"address"`
	Topics      []common.Hash   `json:"topics"`
	Data        hexutil.Bytes   `json:"data"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash     `json:"transactionHash"`
	TxIndex     *hexutil.Uint64 `json:"transactionIndex"`
	BlockHash   *common.Hash    `json:"blockHash"`
	Index       *hexutil.Uint64 `json:"logIndex"`
	Removed     bool            `json:"removed"`
}

// FilterQuery is the eth_getLogs argument. BlockHash excludes the range
// fields; Topics follow the positional-or semantics of the filter API.
type FilterQuery struct {
	BlockHash *common.Hash
	FromBlock *BlockNumberOrTag
	ToBlock   *BlockNumberOrTag
	Addresses []common.Address
	Topics    [][]common.Hash
}

func (q FilterQuery) MarshalJSON() ([]byte, error) {
	arg := make(map[string]interface{})
	if q.BlockHash != nil {
		if q.FromBlock != nil || q.ToBlock != nil {
			return nil, fmt.Errorf("rpc: filter cannot combine blockHash with a block range")
		}
		arg["blockHash"] = *q.BlockHash
	} else {
		if q.FromBlock != nil {
			arg["fromBlock"] = *q.FromBlock
		}
		if q.ToBlock != nil {
			arg["toBlock"] = *q.ToBlock
		}
	}
	if len(q.Addresses) == 1 {
		arg["address"] = q.Addresses[0]
	} else if len(q.Addresses) > 1 {
		arg["address"] = q.Addresses
	}
	if q.Topics != nil {
		arg["topics"] = q.Topics
	}
	return json.Marshal(arg)
}

// CallMsg is the transaction stand-in for eth_call and eth_estimateGas.
// Nil fields are omitted from the wire object.
type CallMsg struct {
	From                 *common.Address   `json:"from,omitempty"`
	To                   *common.Address   `json:"to,omitempty"`
	Gas                  *hexutil.Uint64   `json:"gas,omitempty"`
	GasPrice             *hexutil.Quantity `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Quantity `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Quantity `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Quantity `json:"value,omitempty"`
	Data                 hexutil.Bytes     `json:"data,omitempty"`
}

// FeeHistory is the eth_feeHistory result.
type FeeHistory struct {
	OldestBlock   *hexutil.Quantity     `json:"oldestBlock"`
	BaseFeePerGas []*hexutil.Quantity   `json:"baseFeePerGas"`
	GasUsedRatio  []float64             `json:"gasUsedRatio"`
	Reward        [][]*hexutil.Quantity `json:"reward,omitempty"`
}

// Receipt is the eth_getTransactionReceipt result.
type Receipt struct {
	TxHash            common.Hash       `json:"transactionHash"`
	TxIndex           hexutil.Uint64    `json:"transactionIndex"`
	BlockHash         common.Hash       `json:"blockHash"`
	BlockNumber       *hexutil.Quantity `json:"blockNumber"`
	From              common.Address    `json:"from"`
	To                *common.Address   `json:"to"`
	CumulativeGasUsed hexutil.Uint64    `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64    `json:"gasUsed"`
	ContractAddress   *common.Address   `json:"contractAddress"`
	Logs              []*Log            `json:"logs"`
	LogsBloom         hexutil.Bytes     `json:"logsBloom"`
	Status            hexutil.Uint64    `json:"status"`
	EffectiveGasPrice *hexutil.Quantity `json:"effectiveGasPrice"`
	Type              hexutil.Uint64    `json:"type"`
}
