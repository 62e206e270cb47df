package server

import "sync/atomic"

// Stats は接続処理の統計情報
type Stats struct {
	accepted atomic.Int64 // 受け付けた接続数
	active   atomic.Int64 // 処理中の接続数
	served   atomic.Int64 // 200 を返した数
	notFound atomic.Int64 // 404 を返した数
	rejected atomic.Int64 // 応答せずに切断した数
	failed   atomic.Int64 // 読み書きに失敗した数
}

// StatsSnapshot はある時点の統計情報
type StatsSnapshot struct {
	Accepted int64 `json:"accepted"`
	Active   int64 `json:"active"`
	Served   int64 `json:"served"`
	NotFound int64 `json:"not_found"`
	Rejected int64 `json:"rejected"`
	Failed   int64 `json:"failed"`
}

// Snapshot は現在の統計情報を返す
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted: s.accepted.Load(),
		Active:   s.active.Load(),
		Served:   s.served.Load(),
		NotFound: s.notFound.Load(),
		Rejected: s.rejected.Load(),
		Failed:   s.failed.Load(),
	}
}
