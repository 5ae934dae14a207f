package dataset

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// SplitOptions selects the train/test split size.
type SplitOptions struct {
	TestFraction float64
	// TrainSamples, when positive, fixes the training set size and
	// overrides TestFraction.
	TrainSamples int
}

// TrainSize returns the number of training rows for a table of n rows.
func (o SplitOptions) TrainSize(n int) (int, error) {
	if o.TrainSamples > 0 {
		if o.TrainSamples >= n {
			return 0, fmt.Errorf("train_samples %d must be smaller than the %d available rows", o.TrainSamples, n)
		}
		return o.TrainSamples, nil
	}
	if !(o.TestFraction > 0 && o.TestFraction < 1) {
		return 0, fmt.Errorf("test fraction %v must be in (0, 1)", o.TestFraction)
	}
	nTrain := n - int(math.Ceil(o.TestFraction*float64(n)))
	if nTrain <= 0 {
		return 0, fmt.Errorf("test fraction %v leaves no training rows out of %d", o.TestFraction, n)
	}
	return nTrain, nil
}

// StratifiedSplit splits rows into train and test sets preserving class
// proportions. Each class contributes its proportional share of the
// training rows; leftover rows go to the classes with the largest
// remainders. Rows keep their relative order within each set.
func StratifiedSplit(rows []Row, opt SplitOptions, rng *rand.Rand) (train, test []Row, err error) {
	nTrain, err := opt.TrainSize(len(rows))
	if err != nil {
		return nil, nil, err
	}

	byClass := make(map[Class][]int)
	var classes []Class
	for i, r := range rows {
		if _, ok := byClass[r.Class]; !ok {
			classes = append(classes, r.Class)
		}
		byClass[r.Class] = append(byClass[r.Class], i)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	counts := make([]int, len(classes))
	for i, c := range classes {
		counts[i] = len(byClass[c])
	}
	alloc := allocate(counts, nTrain)

	inTrain := make([]bool, len(rows))
	for i, c := range classes {
		idx := byClass[c]
		for _, p := range rng.Perm(len(idx))[:alloc[i]] {
			inTrain[idx[p]] = true
		}
	}
	for i, r := range rows {
		if inTrain[i] {
			train = append(train, r)
		} else {
			test = append(test, r)
		}
	}
	return train, test, nil
}

// allocate distributes total over groups proportionally to counts using
// largest remainders, ties going to the earlier group.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	alloc := make([]int, len(counts))
	rem := make([]float64, len(counts))
	given := 0
	for i, c := range counts {
		exact := float64(c) * float64(total) / float64(n)
		alloc[i] = int(math.Floor(exact))
		rem[i] = exact - float64(alloc[i])
		given += alloc[i]
	}
	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for _, i := range order {
		if given >= total {
			break
		}
		if alloc[i] < counts[i] {
			alloc[i]++
			given++
		}
	}
	return alloc
}
