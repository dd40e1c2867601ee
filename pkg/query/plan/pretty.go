package plan

import "strings"

// PrintLines renders an operator tree, one line per operator, children
// indented two spaces under their parent.
func PrintLines(op Operator) []string {
	var lines []string
	printInto(op, 0, &lines)
	return lines
}

// Print renders the tree as one string.
func Print(op Operator) string {
	return strings.Join(PrintLines(op), "\n")
}

func printInto(op Operator, depth int, lines *[]string) {
	*lines = append(*lines, strings.Repeat("  ", depth)+"* "+op.String())
	for _, in := range op.Inputs() {
		printInto(in, depth+1, lines)
	}
}
