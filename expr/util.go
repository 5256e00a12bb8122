package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/google/uuid"
)

// utilNamespace backs the `util` value bound into every evaluation scope. It
// is intentionally the only callable surface the language exposes — see the
// safety note on evalCall in interp.go.
type utilNamespace struct{}

func newUtilNamespace() *utilNamespace { return &utilNamespace{} }

func (u *utilNamespace) call(name string, args []any) (any, error) {
	switch name {
	case "now":
		return time.Now().UTC(), nil
	case "today":
		n := time.Now().UTC()
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC), nil
	case "currentDateTime":
		return time.Now(), nil
	case "currentTimeMillis":
		return time.Now().UnixMilli(), nil
	case "formatDate":
		return arityErr(2, args, func() (any, error) { return uFormatDate(args[0], args[1]) })

	case "abs":
		return arityErr(1, args, func() (any, error) { return uAbs(args[0]) })
	case "round":
		return arityErr(1, args, func() (any, error) { return uRound(args[0]) })
	case "ceil":
		return arityErr(1, args, func() (any, error) { return uCeil(args[0]) })
	case "floor":
		return arityErr(1, args, func() (any, error) { return uFloor(args[0]) })
	case "max":
		return arityErr(2, args, func() (any, error) { return uMax(args[0], args[1]) })
	case "min":
		return arityErr(2, args, func() (any, error) { return uMin(args[0], args[1]) })
	case "pow":
		return arityErr(2, args, func() (any, error) { return uPow(args[0], args[1]) })
	case "sqrt":
		return arityErr(1, args, func() (any, error) { return uSqrt(args[0]) })
	case "roundTo":
		return arityErr(2, args, func() (any, error) { return uRoundTo(args[0], args[1]) })

	case "sumItems":
		return arityErr(1, args, func() (any, error) { return uSumItems(args[0]) })
	case "sumField":
		return arityErr(2, args, func() (any, error) { return uSumField(args[0], args[1]) })
	case "avgField":
		return arityErr(2, args, func() (any, error) { return uAvgField(args[0], args[1]) })
	case "countItems":
		return arityErr(1, args, func() (any, error) { return uCountItems(args[0]), nil })

	case "toJson":
		return arityErr(1, args, func() (any, error) { return uToJSON(args[0], false), nil })
	case "toPrettyJson":
		return arityErr(1, args, func() (any, error) { return uToJSON(args[0], true), nil })
	case "fromJson":
		return arityErr(1, args, func() (any, error) { return uFromJSON(args[0]), nil })

	case "isBlank":
		return arityErr(1, args, func() (any, error) { return uIsBlank(args[0]), nil })
	case "lower":
		return arityErr(1, args, func() (any, error) { return uStringMap(args[0], strings.ToLower), nil })
	case "upper":
		return arityErr(1, args, func() (any, error) { return uStringMap(args[0], strings.ToUpper), nil })
	case "trim":
		return arityErr(1, args, func() (any, error) { return uStringMap(args[0], strings.TrimSpace), nil })
	case "startsWith":
		return arityErr(2, args, func() (any, error) { return uStringPredicate2(args[0], args[1], strings.HasPrefix), nil })
	case "endsWith":
		return arityErr(2, args, func() (any, error) { return uStringPredicate2(args[0], args[1], strings.HasSuffix), nil })
	case "substring":
		return arityErr(3, args, func() (any, error) { return uSubstring(args[0], args[1], args[2]) })
	case "replace":
		return arityErr(3, args, func() (any, error) { return uReplace(args[0], args[1], args[2]), nil })

	case "isEmpty":
		return arityErr(1, args, func() (any, error) { return uIsEmpty(args[0]), nil })
	case "isNotEmpty":
		return arityErr(1, args, func() (any, error) { return !uIsEmpty(args[0]), nil })
	case "size":
		return arityErr(1, args, func() (any, error) { return uSize(args[0]), nil })
	case "contains":
		return arityErr(2, args, func() (any, error) { return uContains(args[0], args[1]), nil })
	case "first":
		return arityErr(1, args, func() (any, error) { return uFirst(args[0]), nil })
	case "last":
		return arityErr(1, args, func() (any, error) { return uLast(args[0]), nil })

	case "isNull":
		return arityErr(1, args, func() (any, error) { return args[0] == nil, nil })
	case "isNotNull":
		return arityErr(1, args, func() (any, error) { return args[0] != nil, nil })
	case "defaultIfNull":
		return arityErr(2, args, func() (any, error) {
			if args[0] == nil {
				return args[1], nil
			}
			return args[0], nil
		})
	case "toDouble":
		return arityErr(1, args, func() (any, error) { return uToDouble(args[0]), nil })
	case "toInt":
		return arityErr(1, args, func() (any, error) { return uToInt(args[0]), nil })

	case "uuid":
		return uuid.New().String(), nil
	case "randomInt":
		return arityErr(2, args, func() (any, error) { return uRandomInt(args[0], args[1]) })
	case "join":
		return arityErr(2, args, func() (any, error) { return uJoin(args[0], args[1]) })
	case "split":
		return arityErr(2, args, func() (any, error) { return uSplit(args[0], args[1]) })
	case "coalesce":
		return uCoalesce(args), nil
	}
	return nil, fmt.Errorf("unknown util function %q", name)
}

func arityErr(n int, args []any, fn func() (any, error)) (any, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	return fn()
}

// -- date/time --

func uFormatDate(v, pattern any) (any, error) {
	if v == nil {
		return nil, nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return defaultString(v), nil
	}
	p, _ := pattern.(string)
	return t.Format(javaLayoutToGo(p)), nil
}

// javaLayoutToGo translates a small, common subset of java.time.format
// pattern letters into a Go reference-time layout. Unrecognized runs of
// letters pass through unchanged.
func javaLayoutToGo(pattern string) string {
	replacer := strings.NewReplacer(
		"yyyy", "2006",
		"yy", "06",
		"MM", "01",
		"dd", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
		"SSS", "000",
	)
	return replacer.Replace(pattern)
}

// -- math --

func uAbs(v any) (any, error) {
	f, err := requireFloat(v)
	if err != nil {
		return nil, err
	}
	return math.Abs(f), nil
}

// uRound applies HALF_UP rounding to the nearest integer, matching
// java.math.RoundingMode.HALF_UP (ties round away from zero).
func uRound(v any) (any, error) {
	f, err := requireFloat(v)
	if err != nil {
		return nil, err
	}
	return halfUp(f, 0).(int64), nil
}

func uCeil(v any) (any, error) {
	f, err := requireFloat(v)
	if err != nil {
		return nil, err
	}
	return math.Ceil(f), nil
}

func uFloor(v any) (any, error) {
	f, err := requireFloat(v)
	if err != nil {
		return nil, err
	}
	return math.Floor(f), nil
}

func uMax(a, b any) (any, error) {
	af, err := requireFloat(a)
	if err != nil {
		return nil, err
	}
	bf, err := requireFloat(b)
	if err != nil {
		return nil, err
	}
	return math.Max(af, bf), nil
}

func uMin(a, b any) (any, error) {
	af, err := requireFloat(a)
	if err != nil {
		return nil, err
	}
	bf, err := requireFloat(b)
	if err != nil {
		return nil, err
	}
	return math.Min(af, bf), nil
}

func uPow(base, exp any) (any, error) {
	bf, err := requireFloat(base)
	if err != nil {
		return nil, err
	}
	ef, err := requireFloat(exp)
	if err != nil {
		return nil, err
	}
	return math.Pow(bf, ef), nil
}

func uSqrt(v any) (any, error) {
	f, err := requireFloat(v)
	if err != nil {
		return nil, err
	}
	return math.Sqrt(f), nil
}

// uRoundTo rounds d to n decimal places, HALF_UP. Negative n is a domain
// error. Idempotent: roundTo(roundTo(x,n),n) == roundTo(x,n).
func uRoundTo(d, n any) (any, error) {
	df, err := requireFloat(d)
	if err != nil {
		return nil, err
	}
	nf, err := requireFloat(n)
	if err != nil {
		return nil, err
	}
	if nf < 0 {
		return nil, fmt.Errorf("roundTo: n must be >= 0, got %v", nf)
	}
	return halfUp(df, int(nf)), nil
}

// halfUp rounds f to places decimal digits using round-half-away-from-zero.
// places==0 returns an int64; otherwise a float64.
func halfUp(f float64, places int) any {
	scale := math.Pow(10, float64(places))
	shifted := f * scale
	var rounded float64
	if shifted >= 0 {
		rounded = math.Floor(shifted + 0.5)
	} else {
		rounded = math.Ceil(shifted - 0.5)
	}
	if places == 0 {
		return int64(rounded)
	}
	return rounded / scale
}

func requireFloat(v any) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	return f, nil
}

// -- collection math --

func uSumItems(v any) (any, error) {
	items, err := asMapSlice(v)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, item := range items {
		price, pok := toFloat(item["price"])
		qty, qok := toFloat(item["quantity"])
		if !pok || !qok {
			continue
		}
		total += price * qty
	}
	return total, nil
}

func uSumField(v, field any) (any, error) {
	items, err := asMapSlice(v)
	if err != nil {
		return nil, err
	}
	name, _ := field.(string)
	var total float64
	for _, item := range items {
		if f, ok := toFloat(item[name]); ok {
			total += f
		}
	}
	return total, nil
}

func uAvgField(v, field any) (any, error) {
	items, err := asMapSlice(v)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return 0.0, nil
	}
	sum, err := uSumField(v, field)
	if err != nil {
		return nil, err
	}
	return sum.(float64) / float64(len(items)), nil
}

func uCountItems(v any) any {
	return int64(uSize(v))
}

func asMapSlice(v any) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// -- json --

// uToJSON marshals via encoding/json first so marshal failures (e.g. an
// unsupported foreign resource type) are caught explicitly rather than
// silently swallowed; gabs.ParseJSON + StringIndent then does the actual
// pretty-printing, since gabs (not the stdlib) is the pack's JSON-tree
// library for this domain.
func uToJSON(v any, pretty bool) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if !pretty {
		return string(raw)
	}
	c, err := gabs.ParseJSON(raw)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return c.StringIndent("", "  ")
}

func uFromJSON(v any) any {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	c, err := gabs.ParseJSON([]byte(s))
	if err != nil {
		return nil
	}
	return c.Data()
}

// -- strings --

func uIsBlank(v any) any {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) == ""
}

func uStringMap(v any, fn func(string) string) any {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	return fn(s)
}

func uStringPredicate2(a, b any, fn func(string, string) bool) any {
	as, aok := a.(string)
	bs, bok := b.(string)
	if a == nil || !aok || !bok {
		return false
	}
	return fn(as, bs)
}

func uSubstring(s, start, end any) (any, error) {
	if s == nil {
		return nil, nil
	}
	str, ok := s.(string)
	if !ok {
		return nil, fmt.Errorf("substring: expected a string, got %T", s)
	}
	sf, err := requireFloat(start)
	if err != nil {
		return nil, err
	}
	ef, err := requireFloat(end)
	if err != nil {
		return nil, err
	}
	si, ei := int(sf), int(ef)
	runes := []rune(str)
	if si < 0 || ei > len(runes) || si > ei {
		return nil, fmt.Errorf("substring: invalid range [%d,%d) for length %d", si, ei, len(runes))
	}
	return string(runes[si:ei]), nil
}

func uReplace(s, target, repl any) any {
	if s == nil {
		return nil
	}
	str, ok := s.(string)
	if !ok {
		return s
	}
	t, _ := target.(string)
	r, _ := repl.(string)
	return strings.ReplaceAll(str, t, r)
}

// -- collections (overloads resolve on runtime type) --

func uIsEmpty(v any) any {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func uSize(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return len([]rune(t))
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	}
	return 0
}

func uContains(coll, el any) any {
	switch t := coll.(type) {
	case string:
		s, _ := el.(string)
		return strings.Contains(t, s)
	case []any:
		for _, v := range t {
			if valuesEqual(v, el) {
				return true
			}
		}
		return false
	case map[string]any:
		key, _ := el.(string)
		_, ok := t[key]
		return ok
	}
	return false
}

func uFirst(v any) any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		return t[0]
	}
	return nil
}

func uLast(v any) any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		return t[len(t)-1]
	}
	return nil
}

// -- type/coercion --

func uToDouble(v any) any {
	if v == nil {
		return 0.0
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0.0
}

func uToInt(v any) any {
	if v == nil {
		return int64(0)
	}
	if f, ok := toFloat(v); ok {
		return int64(f)
	}
	if s, ok := v.(string); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return int64(f)
		}
	}
	return int64(0)
}

// -- misc --

func uRandomInt(min, max any) (any, error) {
	lo, err := requireFloat(min)
	if err != nil {
		return nil, err
	}
	hi, err := requireFloat(max)
	if err != nil {
		return nil, err
	}
	l, h := int(lo), int(hi)
	if h < l {
		return nil, fmt.Errorf("randomInt: max (%d) must be >= min (%d)", h, l)
	}
	return int64(l + rand.Intn(h-l+1)), nil
}

func uJoin(coll, delim any) (any, error) {
	list, ok := coll.([]any)
	if !ok {
		if coll == nil {
			return "", nil
		}
		return nil, fmt.Errorf("join: expected a list, got %T", coll)
	}
	d, _ := delim.(string)
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = defaultString(v)
	}
	return strings.Join(parts, d), nil
}

func uSplit(s, delim any) (any, error) {
	if s == nil {
		return nil, nil
	}
	str, ok := s.(string)
	if !ok {
		return nil, fmt.Errorf("split: expected a string, got %T", s)
	}
	d, _ := delim.(string)
	parts := strings.Split(str, d)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func uCoalesce(args []any) any {
	for _, a := range args {
		if a != nil {
			return a
		}
	}
	return nil
}
