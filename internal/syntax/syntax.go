// Package syntax validates that patched JavaScript still parses. The primary
// checker parses in-process with tree-sitter; the node checker shells out to
// node --check for a second opinion when a node binary is available.
package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Checker parses content as JavaScript and reports the first syntax problem.
// A fresh parser per call keeps the checker safe for concurrent use.
type Checker struct{}

func NewChecker() *Checker { return &Checker{} }

func (c *Checker) Check(name, content string) error {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(content))
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	defer tree.Close()

	if bad := firstProblem(tree.RootNode()); bad != nil {
		p := bad.StartPoint()
		return fmt.Errorf("syntax error in %s at line %d, column %d", name, p.Row+1, p.Column+1)
	}
	return nil
}

// Validator is the contract every checker here satisfies.
type Validator interface {
	Check(name, content string) error
}

// Multi chains validators in order and stops at the first problem. The
// verification pass uses it to layer node --check over the in-process parse.
type Multi []Validator

func (m Multi) Check(name, content string) error {
	for _, v := range m {
		if err := v.Check(name, content); err != nil {
			return err
		}
	}
	return nil
}

// firstProblem walks the tree for the shallowest error or missing node.
// Subtrees without errors are skipped wholesale.
func firstProblem(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstProblem(n.Child(i)); bad != nil {
			return bad
		}
	}
	// HasError with no flagged child happens on truncated input.
	return n
}
