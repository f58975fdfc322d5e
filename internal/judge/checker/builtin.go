package checker

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	appErr "intcode/pkg/errors"
)

func newBuiltin(name string) (Checker, error) {
	switch {
	case name == "tokens":
		return tokenChecker{}, nil
	case strings.HasPrefix(name, "float:"):
		eps, err := strconv.ParseFloat(strings.TrimPrefix(name, "float:"), 64)
		if err != nil || eps <= 0 {
			return nil, appErr.Newf(appErr.InvalidParams, "invalid float checker epsilon: %s", name)
		}
		return floatChecker{eps: eps}, nil
	default:
		return nil, appErr.Newf(appErr.InvalidParams, "unknown builtin checker: %s", name)
	}
}

// tokenChecker accepts when both outputs split into the same sequence of
// whitespace-separated tokens.
type tokenChecker struct{}

func (tokenChecker) Check(_ context.Context, in Input) (Outcome, error) {
	return compareTokens(in, func(expected, actual string, pos int) (bool, string) {
		if expected != actual {
			return false, fmt.Sprintf("token %d: expected %q, got %q", pos, expected, actual)
		}
		return true, ""
	})
}

// floatChecker accepts when every token pair is numerically equal within
// eps, absolutely or relative to the expected value.
type floatChecker struct {
	eps float64
}

func (c floatChecker) Check(_ context.Context, in Input) (Outcome, error) {
	return compareTokens(in, func(expected, actual string, pos int) (bool, string) {
		want, err1 := strconv.ParseFloat(expected, 64)
		got, err2 := strconv.ParseFloat(actual, 64)
		if err1 != nil || err2 != nil {
			if expected == actual {
				return true, ""
			}
			return false, fmt.Sprintf("token %d: expected %q, got %q", pos, expected, actual)
		}
		diff := math.Abs(want - got)
		if diff <= c.eps || diff <= c.eps*math.Abs(want) {
			return true, ""
		}
		return false, fmt.Sprintf("token %d: expected %s, got %s (diff %g)", pos, expected, actual, diff)
	})
}

func compareTokens(in Input, equal func(expected, actual string, pos int) (bool, string)) (Outcome, error) {
	expFile, err := os.Open(in.ExpectedPath)
	if err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "open expected output failed")
	}
	defer expFile.Close()
	actFile, err := os.Open(in.ActualPath)
	if err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "open candidate output failed")
	}
	defer actFile.Close()

	expScan := bufio.NewScanner(expFile)
	expScan.Split(bufio.ScanWords)
	expScan.Buffer(make([]byte, 64*1024), 1024*1024)
	actScan := bufio.NewScanner(actFile)
	actScan.Split(bufio.ScanWords)
	actScan.Buffer(make([]byte, 64*1024), 1024*1024)

	pos := 0
	for {
		expOK := expScan.Scan()
		actOK := actScan.Scan()
		if !expOK && !actOK {
			break
		}
		if expOK != actOK {
			return Outcome{Message: fmt.Sprintf("token count differs after %d tokens", pos)}, nil
		}
		pos++
		if ok, msg := equal(expScan.Text(), actScan.Text(), pos); !ok {
			return Outcome{Message: msg}, nil
		}
	}
	if err := expScan.Err(); err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "scan expected output failed")
	}
	if err := actScan.Err(); err != nil {
		return Outcome{}, appErr.Wrapf(err, appErr.CheckerError, "scan candidate output failed")
	}
	return Outcome{Accepted: true}, nil
}
