package api

type ModelInfo struct {
	RunID      string   `json:"run_id"`
	Object     string   `json:"object"`
	Kind       string   `json:"kind"`
	VocabSize  int      `json:"vocab_size"`
	BlockSize  int      `json:"block_size"`
	Parameters int      `json:"parameters"`
	Steps      int      `json:"steps"`
	Tokens     []string `json:"tokens"`
	TrainLoss  float64  `json:"train_loss"`
	DevLoss    float64  `json:"dev_loss"`
	TestLoss   float64  `json:"test_loss"`
}

type SamplesRequest struct {
	Count       *int     `json:"count,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type SamplesResponse struct {
	RunID       string   `json:"run_id"`
	Object      string   `json:"object"`
	Temperature float64  `json:"temperature"`
	Samples     []string `json:"samples"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}

type ErrorResponse struct {
	Error ResponseError `json:"error"`
}
