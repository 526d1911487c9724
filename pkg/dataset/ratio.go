package dataset

import "fmt"

// AdjustRatio redistributes the Pass and NG groups between Train and Val.
//
// For the Pass group, TrainPass followed by ValPass is treated as one ordered
// sequence of n images; the first ceil(n*trainPassPct/100) become the new
// TrainPass and the rest the new ValPass. The NG group is split the same way
// with trainNGPct. Golden and Delete are left alone.
func (in Instance) AdjustRatio(trainPassPct, trainNGPct int) (Instance, error) {
	if trainPassPct < 0 || trainPassPct > 100 {
		return in, fmt.Errorf("train pass %d%%: %w", trainPassPct, ErrInvalidPercent)
	}
	if trainNGPct < 0 || trainNGPct > 100 {
		return in, fmt.Errorf("train ng %d%%: %w", trainNGPct, ErrInvalidPercent)
	}
	out := in
	out.buckets[TrainPass], out.buckets[ValPass] = splitGroup(in.buckets[TrainPass], in.buckets[ValPass], trainPassPct)
	out.buckets[TrainNG], out.buckets[ValNG] = splitGroup(in.buckets[TrainNG], in.buckets[ValNG], trainNGPct)
	return out, nil
}

// splitGroup concatenates train and val and cuts the result at the train share.
func splitGroup(train, val []Image, pct int) ([]Image, []Image) {
	group := make([]Image, 0, len(train)+len(val))
	group = append(group, train...)
	group = append(group, val...)
	cut := ceilShare(len(group), pct)
	return group[:cut:cut], group[cut:]
}

// ceilShare returns ceil(n*pct/100) for non-negative n and pct.
func ceilShare(n, pct int) int {
	return (n*pct + 99) / 100
}

// RatioPreset holds the percentages used to prefill the ratio dialog.
type RatioPreset struct {
	TrainPass int `json:"trainPass"`
	ValPass   int `json:"valPass"`
	TrainNG   int `json:"trainNG"`
	ValNG     int `json:"valNG"`
}

// RatioPreset returns the current Train/Val distribution of the instance as
// whole percentages. An empty group reports 0 for both halves.
func (in Instance) RatioPreset() RatioPreset {
	var p RatioPreset
	p.TrainPass, p.ValPass = shares(in.Len(TrainPass), in.Len(ValPass))
	p.TrainNG, p.ValNG = shares(in.Len(TrainNG), in.Len(ValNG))
	return p
}

func shares(train, val int) (int, int) {
	n := train + val
	if n == 0 {
		return 0, 0
	}
	t := train * 100 / n
	return t, 100 - t
}
