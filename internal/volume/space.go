package volume

// Space is a point-in-time view of volume capacity.
type Space struct {
	TotalBytes  int64   `json:"total_bytes"`
	UsedBytes   int64   `json:"used_bytes"`
	FreeBytes   int64   `json:"free_bytes"`
	PercentUsed float64 `json:"percent_used"`
	PercentFree float64 `json:"percent_free"`
}

func (v *Volume) TotalBytes() int64 {
	if !v.Mounted() {
		return 0
	}
	return v.drv.TotalBytes()
}

func (v *Volume) UsedBytes() int64 {
	if !v.Mounted() {
		return 0
	}
	return v.drv.UsedBytes()
}

func (v *Volume) FreeBytes() int64 {
	if !v.Mounted() {
		return 0
	}
	return max(v.TotalBytes()-v.UsedBytes(), 0)
}

// PercentUsed is 0 when unmounted or when the driver reports no capacity.
func (v *Volume) PercentUsed() float64 {
	total := v.TotalBytes()
	if total == 0 {
		return 0
	}
	return min(float64(v.UsedBytes())*100/float64(total), 100)
}

// PercentFree is 0 when unmounted or when the driver reports no capacity.
// A host directory that outgrew its configured capacity reports 0.
func (v *Volume) PercentFree() float64 {
	if v.TotalBytes() == 0 {
		return 0
	}
	return 100 - v.PercentUsed()
}

// Space collects all counters in one call.
func (v *Volume) Space() Space {
	return Space{
		TotalBytes:  v.TotalBytes(),
		UsedBytes:   v.UsedBytes(),
		FreeBytes:   v.FreeBytes(),
		PercentUsed: v.PercentUsed(),
		PercentFree: v.PercentFree(),
	}
}
