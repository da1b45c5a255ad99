package verdict

import (
	"testing"

	"github.com/cmdrvl/rvl/internal/align"
	"github.com/cmdrvl/rvl/internal/diffengine"
	"github.com/cmdrvl/rvl/internal/refusal"
	"github.com/stretchr/testify/assert"
)

func contributor(idx int, col string, contribution float64) diffengine.Contributor {
	return diffengine.Contributor{RowID: align.RowID{Index: idx}, Column: []byte(col), Contribution: contribution}
}

func TestSelectNoRealChange(t *testing.T) {
	res := &diffengine.Result{TotalChange: 0, MaxAbsDelta: 1e-14}
	o := Select(res, 0.95, nil)
	assert.Equal(t, NoRealChange, o.Kind)
}

func TestSelectRealChangeFullCoverage(t *testing.T) {
	res := &diffengine.Result{
		TotalChange:  100,
		Contributors: []diffengine.Contributor{contributor(1, "amount", 100)},
	}
	o := Select(res, 0.95, nil)
	assert.Equal(t, RealChange, o.Kind)
	assert.Len(t, o.Contributors, 1)
}

func TestSelectDiffuseRefuses(t *testing.T) {
	res := &diffengine.Result{
		TotalChange:  1000,
		Contributors: []diffengine.Contributor{contributor(1, "amount", 10)},
	}
	o := Select(res, 0.95, nil)
	assert.Equal(t, Refusal, o.Kind)
	assert.Equal(t, refusal.EDiffuse, o.Refusal.Code)
}

func TestSelectNeedKeyTakesPrecedence(t *testing.T) {
	res := &diffengine.Result{
		TotalChange:  100,
		Contributors: []diffengine.Contributor{contributor(1, "amount", 100)},
	}
	needKey := refusal.New(refusal.ENeedKey, "rerun with --key id", "rows reordered")
	o := Select(res, 0.95, needKey)
	assert.Equal(t, Refusal, o.Kind)
	assert.Equal(t, refusal.ENeedKey, o.Refusal.Code)
}

func TestSelectSmallestCoveringPrefix(t *testing.T) {
	res := &diffengine.Result{
		TotalChange: 100,
		Contributors: []diffengine.Contributor{
			contributor(1, "a", 60),
			contributor(2, "b", 30),
			contributor(3, "c", 10),
		},
	}
	o := Select(res, 0.8, nil)
	assert.Equal(t, RealChange, o.Kind)
	assert.Len(t, o.Contributors, 2) // 60+30=90 >= 80%
}
