package solver

import (
	"math"
	"strconv"
	"strings"
)

// tryArithmetic answers prompts that are (after stripping a polite
// lead-in) a pure arithmetic expression. The echoed expression has its
// whitespace removed: "28 - 4 + 2" answers as "28-4+2 = 26".
func tryArithmetic(prompt string) string {
	expr := stripMathLead(prompt)
	if expr == "" {
		return ""
	}
	v, ok := EvalArithmetic(expr)
	if !ok {
		return ""
	}
	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, expr)
	n := formatNumber(v)
	if n == "" {
		return ""
	}
	return compact + " = " + n
}

// stripMathLead removes an optional "what is"/"calculate" style prefix
// and trailing question/equals punctuation. It returns "" when the
// remainder is clearly not an expression.
func stripMathLead(p string) string {
	s := strings.TrimSpace(p)
	lower := strings.ToLower(s)
	for _, lead := range []string{"what is", "what's", "whats", "calculate", "compute", "solve", "evaluate"} {
		if strings.HasPrefix(lower, lead+" ") {
			s = strings.TrimSpace(s[len(lead):])
			break
		}
	}
	s = strings.TrimRight(s, " ?=")
	if s == "" {
		return ""
	}
	return s
}

type arithToken struct {
	num  float64
	op   byte // '+', '-', '*', '/', 'u' (unary minus), '(', ')'
	isOp bool
}

// EvalArithmetic evaluates an expression restricted to real numbers,
// + - × ÷ and parentheses. ok is false for any input outside that
// grammar, for malformed expressions, and for division by zero. It
// never shells out or evaluates code.
func EvalArithmetic(expr string) (float64, bool) {
	tokens, ok := tokenizeArith(expr)
	if !ok {
		return 0, false
	}
	// A bare number is not a calculation request.
	hasBinary := false
	for _, t := range tokens {
		if t.isOp && (t.op == '+' || t.op == '-' || t.op == '*' || t.op == '/') {
			hasBinary = true
			break
		}
	}
	if !hasBinary {
		return 0, false
	}
	rpn, ok := toRPN(tokens)
	if !ok {
		return 0, false
	}
	v, ok := evalRPN(rpn)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func tokenizeArith(expr string) ([]arithToken, bool) {
	var tokens []arithToken
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			dots := 0
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				if expr[j] == '.' {
					dots++
				}
				j++
			}
			if dots > 1 {
				return nil, false
			}
			v, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, false
			}
			tokens = append(tokens, arithToken{num: v})
			i = j
		case c == '(' || c == ')':
			tokens = append(tokens, arithToken{op: c, isOp: true})
			i++
		case c == '+' || c == '*' || c == '/':
			tokens = append(tokens, arithToken{op: c, isOp: true})
			i++
		case c == '-':
			if unaryPosition(tokens) {
				tokens = append(tokens, arithToken{op: 'u', isOp: true})
			} else {
				tokens = append(tokens, arithToken{op: '-', isOp: true})
			}
			i++
		default:
			// Multi-byte × and ÷ arrive as UTF-8 sequences.
			if strings.HasPrefix(expr[i:], "×") {
				tokens = append(tokens, arithToken{op: '*', isOp: true})
				i += len("×")
			} else if strings.HasPrefix(expr[i:], "÷") {
				tokens = append(tokens, arithToken{op: '/', isOp: true})
				i += len("÷")
			} else {
				return nil, false
			}
		}
	}
	return tokens, len(tokens) > 0
}

// unaryPosition reports whether a minus at the current point negates
// the next value rather than subtracting.
func unaryPosition(tokens []arithToken) bool {
	if len(tokens) == 0 {
		return true
	}
	last := tokens[len(tokens)-1]
	return last.isOp && last.op != ')'
}

func precedence(op byte) int {
	switch op {
	case 'u':
		return 3
	case '*', '/':
		return 2
	case '+', '-':
		return 1
	default:
		return 0
	}
}

// toRPN is the shunting-yard conversion. Unary minus is right
// associative; the binary operators are left associative.
func toRPN(tokens []arithToken) ([]arithToken, bool) {
	var out, stack []arithToken
	for _, t := range tokens {
		switch {
		case !t.isOp:
			out = append(out, t)
		case t.op == '(':
			stack = append(stack, t)
		case t.op == ')':
			for {
				if len(stack) == 0 {
					return nil, false // unbalanced
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.op == '(' {
					break
				}
				out = append(out, top)
			}
		default:
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.op == '(' {
					break
				}
				if precedence(top.op) > precedence(t.op) ||
					(precedence(top.op) == precedence(t.op) && t.op != 'u') {
					out = append(out, top)
					stack = stack[:len(stack)-1]
					continue
				}
				break
			}
			stack = append(stack, t)
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.op == '(' {
			return nil, false // unbalanced
		}
		out = append(out, top)
	}
	return out, true
}

func evalRPN(rpn []arithToken) (float64, bool) {
	var stack []float64
	for _, t := range rpn {
		if !t.isOp {
			stack = append(stack, t.num)
			continue
		}
		if t.op == 'u' {
			if len(stack) < 1 {
				return 0, false
			}
			stack[len(stack)-1] = -stack[len(stack)-1]
			continue
		}
		if len(stack) < 2 {
			return 0, false
		}
		b := stack[len(stack)-1]
		a := stack[len(stack)-2]
		stack = stack[:len(stack)-2]
		var v float64
		switch t.op {
		case '+':
			v = a + b
		case '-':
			v = a - b
		case '*':
			v = a * b
		case '/':
			if b == 0 {
				return 0, false
			}
			v = a / b
		default:
			return 0, false
		}
		stack = append(stack, v)
	}
	if len(stack) != 1 {
		return 0, false
	}
	return stack[0], true
}
