package hive

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the timestamp layout used by the condenser API.
const TimeLayout = "2006-01-02T15:04:05"

// GlobalProperties is the subset of dynamic global properties the bot reads.
type GlobalProperties struct {
	HeadBlockNumber          uint32 `json:"head_block_number"`
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
	Time                     string `json:"time"`
}

// AppliedOp is one entry of condenser_api.get_ops_in_block.
type AppliedOp struct {
	TrxID      string    `json:"trx_id"`
	Block      uint32    `json:"block"`
	TrxInBlock int       `json:"trx_in_block"`
	OpInTrx    int       `json:"op_in_trx"`
	VirtualOp  int       `json:"virtual_op"`
	Timestamp  string    `json:"timestamp"`
	Op         Operation `json:"op"`
}

// Time parses the op timestamp. Unparseable values yield the zero time.
func (a AppliedOp) Time() time.Time {
	t, err := time.ParseInLocation(TimeLayout, strings.TrimSuffix(a.Timestamp, "Z"), time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Operation is encoded by the condenser API as a [name, payload] pair.
type Operation struct {
	Name    string
	Payload json.RawMessage
}

func (o Operation) MarshalJSON() ([]byte, error) {
	payload := o.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{o.Name, payload})
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("operation: expected [name, payload], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &o.Name); err != nil {
		return fmt.Errorf("operation name: %w", err)
	}
	o.Payload = pair[1]
	return nil
}

// NewOperation encodes payload as the body of a named operation.
func NewOperation(name string, payload any) (Operation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Operation{}, fmt.Errorf("encode %s operation: %w", name, err)
	}
	return Operation{Name: name, Payload: data}, nil
}

// CommentOp is the payload of a comment operation.
type CommentOp struct {
	ParentAuthor   string `json:"parent_author"`
	ParentPermlink string `json:"parent_permlink"`
	Author         string `json:"author"`
	Permlink       string `json:"permlink"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	JSONMetadata   string `json:"json_metadata"`
}

// VoteOp is the payload of a vote operation.
type VoteOp struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int64  `json:"weight"`
}

// CustomJSONOp is the payload of a custom_json operation.
type CustomJSONOp struct {
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	ID                   string   `json:"id"`
	JSON                 string   `json:"json"`
}

// Content is the subset of a post or comment the bot reads.
type Content struct {
	Author       string `json:"author"`
	Permlink     string `json:"permlink"`
	ParentAuthor string `json:"parent_author"`
	Body         string `json:"body"`
}

// Reply is a direct reply to a post or comment.
type Reply struct {
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
}
