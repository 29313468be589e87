// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outline

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// outlinePython walks a Python module: top-level functions, classes
// with their methods and class attributes, and module-level
// assignments. Docstrings take the place of preceding comments.
func outlinePython(root *sitter.Node, content []byte) []*Symbol {
	symbols := []*Symbol{}
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_definition":
			if sym := pyFunction(child, content, ""); sym != nil {
				symbols = append(symbols, sym)
			}
		case "class_definition":
			if sym := pyClass(child, content); sym != nil {
				symbols = append(symbols, sym)
			}
		case "decorated_definition":
			if sym := pyDecorated(child, content, ""); sym != nil {
				symbols = append(symbols, sym)
			}
		case "expression_statement":
			if sym := pyAssignment(child, content, ""); sym != nil {
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols
}

// pyDecorated unwraps a decorated definition to the def or class inside.
func pyDecorated(node *sitter.Node, content []byte, parent string) *Symbol {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "function_definition":
			return pyFunction(child, content, parent)
		case "class_definition":
			return pyClass(child, content)
		}
	}
	return nil
}

func pyFunction(node *sitter.Node, content []byte, parent string) *Symbol {
	var name, params, returns string
	isAsync := false
	var body *sitter.Node

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "async":
			isAsync = true
		case "identifier":
			if name == "" {
				name = nodeText(child, content)
			}
		case "parameters":
			params = nodeText(child, content)
		case "type":
			returns = nodeText(child, content)
		case "block":
			body = child
		}
	}
	if name == "" {
		return nil
	}

	signature := "def " + name + params
	if isAsync {
		signature = "async " + signature
	}
	if returns != "" {
		signature += " -> " + returns
	}

	kind := KindFunction
	if parent != "" {
		kind = KindMethod
	}
	return &Symbol{
		Name:      name,
		Kind:      kind,
		Line:      startLine(node),
		EndLine:   endLine(node),
		Signature: signature,
		Doc:       pyDocstring(body, content),
		Parent:    parent,
	}
}

func pyClass(node *sitter.Node, content []byte) *Symbol {
	var name string
	var bases []string
	var body *sitter.Node

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			if name == "" {
				name = nodeText(child, content)
			}
		case "argument_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				arg := child.Child(j)
				if arg.Type() == "identifier" || arg.Type() == "attribute" {
					bases = append(bases, nodeText(arg, content))
				}
			}
		case "block":
			body = child
		}
	}
	if name == "" {
		return nil
	}

	signature := "class " + name
	if len(bases) > 0 {
		signature += "(" + strings.Join(bases, ", ") + ")"
	}
	sym := &Symbol{
		Name:      name,
		Kind:      KindClass,
		Line:      startLine(node),
		EndLine:   endLine(node),
		Signature: signature,
		Doc:       pyDocstring(body, content),
	}
	if body != nil {
		sym.Children = pyClassMembers(body, content, name)
	}
	return sym
}

func pyClassMembers(body *sitter.Node, content []byte, className string) []*Symbol {
	var members []*Symbol
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "function_definition":
			if sym := pyFunction(child, content, className); sym != nil {
				members = append(members, sym)
			}
		case "decorated_definition":
			if sym := pyDecorated(child, content, className); sym != nil {
				members = append(members, sym)
			}
		case "expression_statement":
			if sym := pyAssignment(child, content, className); sym != nil {
				sym.Kind = KindField
				members = append(members, sym)
			}
		}
	}
	return members
}

// pyAssignment turns a simple assignment statement into a symbol.
// SCREAMING_CASE names outline as constants, everything else as
// variables.
func pyAssignment(stmt *sitter.Node, content []byte, parent string) *Symbol {
	if stmt.ChildCount() == 0 {
		return nil
	}
	assign := stmt.Child(0)
	if assign.Type() != "assignment" && assign.Type() != "augmented_assignment" {
		return nil
	}

	var name, typeStr string
	for i := 0; i < int(assign.ChildCount()); i++ {
		child := assign.Child(i)
		switch child.Type() {
		case "identifier":
			if name == "" {
				name = nodeText(child, content)
			}
		case "type":
			typeStr = nodeText(child, content)
		}
	}
	if name == "" {
		return nil
	}

	kind := KindVariable
	if name == strings.ToUpper(name) && name != strings.ToLower(name) {
		kind = KindConstant
	}
	return &Symbol{
		Name:      name,
		Kind:      kind,
		Line:      startLine(assign),
		EndLine:   endLine(assign),
		Signature: typeStr,
		Parent:    parent,
	}
}

// pyDocstring pulls the docstring from the first statement of a block.
func pyDocstring(body *sitter.Node, content []byte) string {
	if body == nil || body.ChildCount() == 0 {
		return ""
	}
	first := body.Child(0)
	if first.Type() != "expression_statement" || first.ChildCount() == 0 {
		return ""
	}
	str := first.Child(0)
	if str.Type() != "string" {
		return ""
	}
	return cleanDocstring(nodeText(str, content))
}

// cleanDocstring strips quoting and surrounding whitespace.
func cleanDocstring(raw string) string {
	s := strings.TrimSpace(raw)
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) && len(s) >= 2*len(quote) {
			s = s[len(quote) : len(s)-len(quote)]
			break
		}
	}
	return strings.TrimSpace(s)
}
