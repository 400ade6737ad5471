// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codeindex

import (
	"context"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// astNodeKinds maps a tree-sitter grammar's node type names for
// top-level declarations to a (symbolType) label, per language. Only the
// node kinds that make good standalone chunks are listed; anything else is
// left to surrounding line-window coverage.
var astNodeKinds = map[string]map[string]string{
	"go": {
		"function_declaration": "function",
		"method_declaration":   "method",
		"type_declaration":     "type",
	},
	"python": {
		"function_definition": "function",
		"class_definition":    "class",
	},
	"javascript": {
		"function_declaration":           "function",
		"generator_function_declaration": "function",
		"class_declaration":              "class",
	},
	"typescript": {
		"function_declaration":   "function",
		"class_declaration":      "class",
		"interface_declaration":  "interface",
		"type_alias_declaration": "type",
		"enum_declaration":       "enum",
	},
}

func grammarFor(language string) (*sitter.Language, bool) {
	switch language {
	case "go":
		return golang.GetLanguage(), true
	case "python":
		return python.GetLanguage(), true
	case "javascript":
		return javascript.GetLanguage(), true
	case "typescript":
		return typescript.GetLanguage(), true
	default:
		return nil, false
	}
}

// ChunkAST splits content at tree-sitter declaration boundaries for
// languages with a registered grammar. Returns (nil, ErrUnsupportedLanguage)
// for anything else so callers can fall back to ChunkHeuristic/ChunkByLines.
//
// A fresh parser is created per call (the teacher's pattern for tree-sitter
// thread safety: *sitter.Parser is not safe to reuse across goroutines).
func ChunkAST(ctx context.Context, file, language, content string) ([]Chunk, error) {
	lang, ok := grammarFor(language)
	if !ok {
		return nil, ErrUnsupportedLanguage
	}
	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("InputInvalid: %s is not valid UTF-8", file)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return nil, fmt.Errorf("codeindex: tree-sitter parse of %s: %w", file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, nil
	}

	kinds := astNodeKinds[language]
	src := []byte(content)
	var chunks []Chunk
	walkTopLevel(root, func(n *sitter.Node) {
		symbolType, ok := kinds[n.Type()]
		if !ok {
			return
		}
		name := declName(n, src)
		chunks = append(chunks, Chunk{
			File:          file,
			Language:      language,
			Content:       n.Content(src),
			LineStart:     int(n.StartPoint().Row) + 1,
			LineEnd:       int(n.EndPoint().Row) + 1,
			Symbol:        name,
			SymbolType:    symbolType,
			IndexStrategy: StrategyASTSymbol,
		})
	})

	return finalizeChunks(chunks), nil
}

// walkTopLevel visits only the direct children of the root node rather than
// the whole tree: nested function literals and closures stay embedded in
// their parent chunk instead of fragmenting it, and a grouped Go
// declaration such as `type ( ... )` is visited as one node.
func walkTopLevel(root *sitter.Node, visit func(*sitter.Node)) {
	for i := 0; i < int(root.ChildCount()); i++ {
		visit(root.Child(i))
	}
}

// declName extracts the identifier naming a declaration node, using the
// grammar's "name" field when present (works across go/python function and
// class/type declarations). A Go type_declaration carries no name field of
// its own, so the first named child that has one (its type_spec) is used.
func declName(n *sitter.Node, src []byte) string {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		return nameNode.Content(src)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if nameNode := n.NamedChild(i).ChildByFieldName("name"); nameNode != nil {
			return nameNode.Content(src)
		}
	}
	return ""
}
