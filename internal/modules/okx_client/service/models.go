package service

type instrumentRow struct {
	InstID string `json:"instId"`
	TickSz string `json:"tickSz"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	CtVal  string `json:"ctVal"`
	CtMult string `json:"ctMult"`
	State  string `json:"state"`
}

type tickerRow struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
}

type positionRow struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"`
	PosSide string `json:"posSide"`
	AvgPx   string `json:"avgPx"`
}

type accountConfigRow struct {
	UID     string `json:"uid"`
	PosMode string `json:"posMode"`
}

// itemResult is the per-item status OKX returns for trade requests.
type itemResult struct {
	OrdID       string `json:"ordId"`
	ClOrdID     string `json:"clOrdId"`
	AlgoID      string `json:"algoId"`
	AlgoClOrdID string `json:"algoClOrdId"`
	SCode       string `json:"sCode"`
	SMsg        string `json:"sMsg"`
}

// AttachAlgo is a take-profit/stop-loss pair attached to a market entry.
type AttachAlgo struct {
	AttachAlgoClOrdID string `json:"attachAlgoClOrdId,omitempty"`
	TpTriggerPx       string `json:"tpTriggerPx,omitempty"`
	TpOrdPx           string `json:"tpOrdPx,omitempty"`
	SlTriggerPx       string `json:"slTriggerPx,omitempty"`
	SlOrdPx           string `json:"slOrdPx,omitempty"`
}

// OrderRequest is the body of /api/v5/trade/order.
type OrderRequest struct {
	InstID         string       `json:"instId"`
	TdMode         string       `json:"tdMode"`
	Side           string       `json:"side"`
	OrdType        string       `json:"ordType"`
	Sz             string       `json:"sz"`
	Px             string       `json:"px,omitempty"`
	ClOrdID        string       `json:"clOrdId,omitempty"`
	ReduceOnly     bool         `json:"reduceOnly,omitempty"`
	AttachAlgoOrds []AttachAlgo `json:"attachAlgoOrds,omitempty"`
}

// AlgoRequest is the body of /api/v5/trade/order-algo for oco and conditional orders.
type AlgoRequest struct {
	InstID      string `json:"instId"`
	TdMode      string `json:"tdMode"`
	Side        string `json:"side"`
	OrdType     string `json:"ordType"`
	Sz          string `json:"sz"`
	AlgoClOrdID string `json:"algoClOrdId,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	TpTriggerPx string `json:"tpTriggerPx,omitempty"`
	TpOrdPx     string `json:"tpOrdPx,omitempty"`
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	SlOrdPx     string `json:"slOrdPx,omitempty"`
}

// PendingAlgo is a working oco or conditional order.
type PendingAlgo struct {
	InstID      string `json:"instId"`
	AlgoID      string `json:"algoId"`
	AlgoClOrdID string `json:"algoClOrdId"`
	OrdType     string `json:"ordType"`
}
