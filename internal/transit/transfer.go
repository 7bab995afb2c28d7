package transit

import (
	"math"
	"time"
)

// DefaultTransferPenalty is added to a journey for every change of line.
const DefaultTransferPenalty = 120 * time.Second

// Transfer is a change of line at a station.
type Transfer struct {
	StationID string `json:"stationId"`
	FromLine  string `json:"fromLine"`
	ToLine    string `json:"toLine"`
}

// DetectTransfers returns one transfer for each pair of consecutive edges on
// different lines, located at the origin of the second edge.
func DetectTransfers(edges []Edge) []Transfer {
	var transfers []Transfer
	for i := 1; i < len(edges); i++ {
		if edges[i].LineID != edges[i-1].LineID {
			transfers = append(transfers, Transfer{
				StationID: edges[i].From,
				FromLine:  edges[i-1].LineID,
				ToLine:    edges[i].LineID,
			})
		}
	}
	return transfers
}

// JourneySeconds is the path weight plus the transfer penalty for each
// transfer, rounded to whole seconds.
func JourneySeconds(weight float64, transfers int, penalty time.Duration) int {
	return int(math.Round(weight)) + transfers*int(penalty/time.Second)
}
