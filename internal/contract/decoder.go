package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"predictScope/internal/model"
)

// EventNames lists the decodable events in a stable order.
var EventNames = []string{
	"MarketCreated",
	"OptionBought",
	"MarketResolved",
	"MarketRefunded",
	"UserWon",
	"UserLost",
	"WinningsClaimed",
	"RefundClaimed",
}

// ChainMeta supplies chain lookups the raw log does not carry.
type ChainMeta interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	TransactionFrom(ctx context.Context, txHash common.Hash) (common.Address, error)
}

// Decoder converts PogPredict logs into typed events.
type Decoder struct {
	abi         abi.ABI
	topicToName map[common.Hash]string
	meta        ChainMeta
}

// NewDecoder builds a decoder backed by the given chain metadata source.
func NewDecoder(meta ChainMeta) (*Decoder, error) {
	parsed, err := PogPredictABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[common.Hash]string, len(EventNames))
	for _, name := range EventNames {
		event, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("event missing from ABI: %s", name)
		}
		topicToName[event.ID] = name
	}

	return &Decoder{
		abi:         parsed,
		topicToName: topicToName,
		meta:        meta,
	}, nil
}

// Topics returns every decodable topic0 for log filtering.
func (d *Decoder) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(EventNames))
	for _, name := range EventNames {
		topics = append(topics, d.abi.Events[name].ID)
	}
	return topics
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.topicToName[topic0]
	return ok
}

// Decode converts a log into a typed event, filling in block timestamps for
// events whose payload does not carry one.
func (d *Decoder) Decode(ctx context.Context, log types.Log) (model.Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	switch name {
	case "MarketCreated":
		return d.decodeMarketCreated(ctx, log)
	case "OptionBought":
		return d.decodeOptionBought(log)
	case "MarketResolved":
		return d.decodeMarketResolved(ctx, log)
	case "MarketRefunded":
		return d.decodeMarketRefunded(ctx, log)
	case "UserWon":
		return d.decodeUserWon(ctx, log)
	case "UserLost":
		return d.decodeUserLost(ctx, log)
	case "WinningsClaimed":
		return d.decodeWinningsClaimed(log)
	case "RefundClaimed":
		return d.decodeRefundClaimed(ctx, log)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func (d *Decoder) decodeMarketCreated(ctx context.Context, log types.Log) (model.Event, error) {
	event := d.abi.Events["MarketCreated"]

	var indexed struct {
		MarketId *big.Int
	}
	if err := parseIndexed(event, log, &indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 8 {
		return nil, fmt.Errorf("unexpected MarketCreated values: %d", len(values))
	}

	question, err := asString(values[0])
	if err != nil {
		return nil, err
	}
	optionA, err := asString(values[1])
	if err != nil {
		return nil, err
	}
	optionB, err := asString(values[2])
	if err != nil {
		return nil, err
	}
	category, err := asString(values[3])
	if err != nil {
		return nil, err
	}
	logoA, err := asString(values[4])
	if err != nil {
		return nil, err
	}
	logoB, err := asString(values[5])
	if err != nil {
		return nil, err
	}
	endTime, err := asBigInt(values[6])
	if err != nil {
		return nil, err
	}
	oracleMatchID, err := asBigInt(values[7])
	if err != nil {
		return nil, err
	}

	meta, err := d.blockMeta(ctx, log)
	if err != nil {
		return nil, err
	}

	creator, err := d.meta.TransactionFrom(ctx, log.TxHash)
	if err != nil {
		return nil, fmt.Errorf("tx sender %s: %w", log.TxHash.Hex(), err)
	}

	return model.MarketCreated{
		EventMeta:     meta,
		MarketID:      indexed.MarketId.String(),
		Question:      question,
		OptionA:       optionA,
		OptionB:       optionB,
		Category:      category,
		LogoURLA:      logoA,
		LogoURLB:      logoB,
		EndTime:       endTime.Uint64(),
		OracleMatchID: oracleMatchID.Uint64(),
		Creator:       model.NormalizeAddress(creator.Hex()),
	}, nil
}

func (d *Decoder) decodeOptionBought(log types.Log) (model.Event, error) {
	event := d.abi.Events["OptionBought"]

	var indexed struct {
		User     common.Address
		MarketId *big.Int
	}
	if err := parseIndexed(event, log, &indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected OptionBought values: %d", len(values))
	}

	isOptionA, err := asBool(values[0])
	if err != nil {
		return nil, err
	}
	amount, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}
	timestamp, err := asBigInt(values[2])
	if err != nil {
		return nil, err
	}

	return model.OptionBought{
		EventMeta: logMeta(log, timestamp.Uint64()),
		User:      model.NormalizeAddress(indexed.User.Hex()),
		MarketID:  indexed.MarketId.String(),
		Side:      model.SideFromBool(isOptionA),
		Amount:    amount,
	}, nil
}

func (d *Decoder) decodeMarketResolved(ctx context.Context, log types.Log) (model.Event, error) {
	event := d.abi.Events["MarketResolved"]

	var indexed struct {
		MarketId *big.Int
	}
	if err := parseIndexed(event, log, &indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected MarketResolved values: %d", len(values))
	}

	outcome, err := asUint8(values[0])
	if err != nil {
		return nil, err
	}
	source, err := asUint8(values[1])
	if err != nil {
		return nil, err
	}
	details, err := asString(values[2])
	if err != nil {
		return nil, err
	}
	resolvedBy, err := asAddress(values[3])
	if err != nil {
		return nil, err
	}

	meta, err := d.blockMeta(ctx, log)
	if err != nil {
		return nil, err
	}

	return model.MarketResolved{
		EventMeta:  meta,
		MarketID:   indexed.MarketId.String(),
		Outcome:    model.MarketOutcome(outcome),
		Source:     source,
		Details:    details,
		ResolvedBy: model.NormalizeAddress(resolvedBy.Hex()),
	}, nil
}

func (d *Decoder) decodeMarketRefunded(ctx context.Context, log types.Log) (model.Event, error) {
	event := d.abi.Events["MarketRefunded"]

	var indexed struct {
		MarketId *big.Int
	}
	if err := parseIndexed(event, log, &indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected MarketRefunded values: %d", len(values))
	}

	reason, err := asString(values[0])
	if err != nil {
		return nil, err
	}
	resolvedBy, err := asAddress(values[1])
	if err != nil {
		return nil, err
	}

	meta, err := d.blockMeta(ctx, log)
	if err != nil {
		return nil, err
	}

	return model.MarketRefunded{
		EventMeta:  meta,
		MarketID:   indexed.MarketId.String(),
		Reason:     reason,
		ResolvedBy: model.NormalizeAddress(resolvedBy.Hex()),
	}, nil
}

func (d *Decoder) decodeUserWon(ctx context.Context, log types.Log) (model.Event, error) {
	user, marketID, amount, err := d.decodeUserAmount(d.abi.Events["UserWon"], log)
	if err != nil {
		return nil, err
	}
	meta, err := d.blockMeta(ctx, log)
	if err != nil {
		return nil, err
	}
	return model.UserWon{EventMeta: meta, User: user, MarketID: marketID, Amount: amount}, nil
}

func (d *Decoder) decodeUserLost(ctx context.Context, log types.Log) (model.Event, error) {
	user, marketID, amount, err := d.decodeUserAmount(d.abi.Events["UserLost"], log)
	if err != nil {
		return nil, err
	}
	meta, err := d.blockMeta(ctx, log)
	if err != nil {
		return nil, err
	}
	return model.UserLost{EventMeta: meta, User: user, MarketID: marketID, Amount: amount}, nil
}

func (d *Decoder) decodeWinningsClaimed(log types.Log) (model.Event, error) {
	event := d.abi.Events["WinningsClaimed"]

	var indexed struct {
		User     common.Address
		MarketId *big.Int
	}
	if err := parseIndexed(event, log, &indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected WinningsClaimed values: %d", len(values))
	}

	payout, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}
	timestamp, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}

	return model.WinningsClaimed{
		EventMeta: logMeta(log, timestamp.Uint64()),
		User:      model.NormalizeAddress(indexed.User.Hex()),
		MarketID:  indexed.MarketId.String(),
		Payout:    payout,
	}, nil
}

func (d *Decoder) decodeRefundClaimed(ctx context.Context, log types.Log) (model.Event, error) {
	event := d.abi.Events["RefundClaimed"]

	var indexed struct {
		MarketId *big.Int
		User     common.Address
	}
	if err := parseIndexed(event, log, &indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected RefundClaimed values: %d", len(values))
	}

	amount, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}

	meta, err := d.blockMeta(ctx, log)
	if err != nil {
		return nil, err
	}

	return model.RefundClaimed{
		EventMeta: meta,
		MarketID:  indexed.MarketId.String(),
		User:      model.NormalizeAddress(indexed.User.Hex()),
		Amount:    amount,
	}, nil
}

func (d *Decoder) decodeUserAmount(event abi.Event, log types.Log) (string, string, *big.Int, error) {
	var indexed struct {
		User     common.Address
		MarketId *big.Int
	}
	if err := parseIndexed(event, log, &indexed); err != nil {
		return "", "", nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return "", "", nil, err
	}
	if len(values) != 1 {
		return "", "", nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}

	amount, err := asBigInt(values[0])
	if err != nil {
		return "", "", nil, err
	}

	return model.NormalizeAddress(indexed.User.Hex()), indexed.MarketId.String(), amount, nil
}

func (d *Decoder) blockMeta(ctx context.Context, log types.Log) (model.EventMeta, error) {
	ts, err := d.meta.BlockTimestamp(ctx, log.BlockNumber)
	if err != nil {
		return model.EventMeta{}, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
	}
	return logMeta(log, ts), nil
}

func logMeta(log types.Log, timestamp uint64) model.EventMeta {
	return model.EventMeta{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Timestamp:   timestamp,
	}
}

func parseIndexed(event abi.Event, log types.Log, out interface{}) error {
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return fmt.Errorf("expected %d topics for %s, got %d", len(indexed)+1, event.Name, len(log.Topics))
	}
	if err := abi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
		return fmt.Errorf("parse topics for %s: %w", event.Name, err)
	}
	return nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, data []byte) ([]interface{}, error) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	typed, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", value)
	}
	return typed, nil
}

func asString(value interface{}) (string, error) {
	typed, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return typed, nil
}

func asBool(value interface{}) (bool, error) {
	typed, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", value)
	}
	return typed, nil
}

func asAddress(value interface{}) (common.Address, error) {
	typed, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address, got %T", value)
	}
	return typed, nil
}

func asUint8(value interface{}) (uint8, error) {
	typed, ok := value.(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8, got %T", value)
	}
	return typed, nil
}
