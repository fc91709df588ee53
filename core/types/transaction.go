package types

// Transaction is one deterministically ordered input handed to the engine
// by the block producer.
type Transaction struct {
	RefBlockNumber uint64 `json:"refBlockNumber"`
	TransactionID  string `json:"transactionId"`
	Sender         string `json:"sender"`
	Contract       string `json:"contract"`
	Action         string `json:"action"`
	Payload        string `json:"payload"`
}

// BlockContext is the block-level metadata shared by every transaction of a
// block. The two block ids seed contract randomness.
type BlockContext struct {
	BlockNumber    uint64 `json:"blockNumber"`
	Timestamp      string `json:"timestamp"`
	RefBlockID     string `json:"refBlockId"`
	PrevRefBlockID string `json:"prevRefBlockId"`
}

// DeployPayload is the JSON payload of a deployment transaction. Code is the
// base64 encoded contract body.
type DeployPayload struct {
	Name   *string     `json:"name"`
	Params interface{} `json:"params"`
	Code   *string     `json:"code"`
}

// Block is a block of the replay input: its context followed by its
// transactions in execution order.
type Block struct {
	BlockContext
	Transactions []*Transaction `json:"transactions"`
}
