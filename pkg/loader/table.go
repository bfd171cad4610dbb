package loader

import (
	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/regfile/pkg/vm"
)

// StatsTable lays out stack statistics as a table with one row per register
// file, outermost first.
func StatsTable(st vm.StackStats) *dataframe.DataFrame {
	n := len(st.Files)
	si := &dataframe.SeriesInit{Size: n}

	depth := dataframe.NewSeriesInt64("depth", si)
	kind := dataframe.NewSeriesString("kind", si)
	globals := dataframe.NewSeriesInt64("globals", si)
	size := dataframe.NewSeriesInt64("size", si)
	capacity := dataframe.NewSeriesInt64("capacity", si)
	maxSize := dataframe.NewSeriesInt64("max_size", si)
	reallocs := dataframe.NewSeriesInt64("reallocations", si)

	for i, f := range st.Files {
		depth.Update(i, int64(f.Depth))
		if f.ForImplicitCall {
			kind.Update(i, "call")
		} else {
			kind.Update(i, "global")
		}
		globals.Update(i, int64(f.Globals))
		size.Update(i, int64(f.Size))
		capacity.Update(i, int64(f.Capacity))
		maxSize.Update(i, int64(f.MaxSize))
		reallocs.Update(i, int64(f.Reallocations))
	}

	return dataframe.NewDataFrame(depth, kind, globals, size, capacity, maxSize, reallocs)
}
