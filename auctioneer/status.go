package auctioneer

import "fmt"

// parseStatus returns the first i in [0, n) whose name matches text.
func parseStatus(kind string, text []byte, n int, name func(i int) string) (int, error) {
	for i := 0; i < n; i++ {
		if name(i) == string(text) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s status %q", kind, text)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (as *AuctionStatus) UnmarshalText(text []byte) error {
	i, err := parseStatus("auction", text, int(AuctionStatusCancelled)+1,
		func(i int) string { return AuctionStatus(i).String() })
	*as = AuctionStatus(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ls *LaneStatus) UnmarshalText(text []byte) error {
	i, err := parseStatus("lane", text, int(LaneStatusAwarded)+1,
		func(i int) string { return LaneStatus(i).String() })
	*ls = LaneStatus(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (as *AwardStatus) UnmarshalText(text []byte) error {
	i, err := parseStatus("award", text, int(AwardStatusReawarded)+1,
		func(i int) string { return AwardStatus(i).String() })
	*as = AwardStatus(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ps *PlacementStatus) UnmarshalText(text []byte) error {
	i, err := parseStatus("placement", text, int(PlacementStatusFailed)+1,
		func(i int) string { return PlacementStatus(i).String() })
	*ps = PlacementStatus(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ss *SpotAuctionStatus) UnmarshalText(text []byte) error {
	i, err := parseStatus("spot auction", text, int(SpotAuctionStatusNoWinner)+1,
		func(i int) string { return SpotAuctionStatus(i).String() })
	*ss = SpotAuctionStatus(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (es *EntryStatus) UnmarshalText(text []byte) error {
	i, err := parseStatus("queue entry", text, int(EntryStatusOutOfThreshold)+1,
		func(i int) string { return EntryStatus(i).String() })
	*es = EntryStatus(i)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (qs *QueueStatus) UnmarshalText(text []byte) error {
	i, err := parseStatus("queue", text, int(QueueStatusCompleted)+1,
		func(i int) string { return QueueStatus(i).String() })
	*qs = QueueStatus(i)
	return err
}
