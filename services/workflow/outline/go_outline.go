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
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// outlineGo walks the top level of a Go file: functions, methods,
// type declarations with their fields or method sets, and const/var
// blocks.
func outlineGo(root *sitter.Node, content []byte) []*Symbol {
	symbols := []*Symbol{}
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_declaration":
			if sym := goFunction(child, content); sym != nil {
				symbols = append(symbols, sym)
			}
		case "method_declaration":
			if sym := goMethod(child, content); sym != nil {
				symbols = append(symbols, sym)
			}
		case "type_declaration":
			symbols = append(symbols, goTypes(child, content)...)
		case "const_declaration":
			symbols = append(symbols, goValueSpecs(child, content, KindConstant)...)
		case "var_declaration":
			symbols = append(symbols, goValueSpecs(child, content, KindVariable)...)
		}
	}
	return symbols
}

func goFunction(node *sitter.Node, content []byte) *Symbol {
	var name, params, returns string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			name = nodeText(child, content)
		case "parameter_list":
			// The first list is the parameters, a second one is a
			// parenthesized return list.
			if params == "" {
				params = nodeText(child, content)
			} else {
				returns = nodeText(child, content)
			}
		case "type_identifier", "pointer_type", "slice_type", "map_type",
			"channel_type", "qualified_type", "interface_type", "struct_type",
			"function_type":
			returns = nodeText(child, content)
		}
	}
	if name == "" {
		return nil
	}
	signature := fmt.Sprintf("func %s%s", name, params)
	if returns != "" {
		signature += " " + returns
	}
	return &Symbol{
		Name:      name,
		Kind:      KindFunction,
		Line:      startLine(node),
		EndLine:   endLine(node),
		Signature: signature,
		Doc:       precedingComment(node, content),
	}
}

func goMethod(node *sitter.Node, content []byte) *Symbol {
	var name, receiver, params, returns string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "parameter_list":
			// Receiver, then parameters, then a parenthesized return list.
			switch {
			case receiver == "":
				receiver = nodeText(child, content)
			case params == "":
				params = nodeText(child, content)
			default:
				returns = nodeText(child, content)
			}
		case "field_identifier":
			name = nodeText(child, content)
		case "type_identifier", "pointer_type", "slice_type", "map_type",
			"channel_type", "qualified_type":
			returns = nodeText(child, content)
		}
	}
	if name == "" {
		return nil
	}
	signature := fmt.Sprintf("func %s %s%s", receiver, name, params)
	if returns != "" {
		signature += " " + returns
	}
	return &Symbol{
		Name:      name,
		Kind:      KindMethod,
		Line:      startLine(node),
		EndLine:   endLine(node),
		Signature: signature,
		Doc:       precedingComment(node, content),
		Parent:    receiverTypeName(receiver),
	}
}

// receiverTypeName reduces "(s *Server)" or "(q Queue[T])" to the bare
// type name.
func receiverTypeName(receiver string) string {
	trimmed := strings.Trim(receiver, "()")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimLeft(fields[len(fields)-1], "*")
	if idx := strings.IndexByte(name, '['); idx >= 0 {
		name = name[:idx]
	}
	return name
}

func goTypes(decl *sitter.Node, content []byte) []*Symbol {
	var symbols []*Symbol
	for i := 0; i < int(decl.ChildCount()); i++ {
		child := decl.Child(i)
		if child.Type() != "type_spec" {
			continue
		}
		if sym := goTypeSpec(child, decl, content); sym != nil {
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

func goTypeSpec(spec, decl *sitter.Node, content []byte) *Symbol {
	var name string
	kind := KindType
	var bodyNode *sitter.Node

	for i := 0; i < int(spec.ChildCount()); i++ {
		child := spec.Child(i)
		switch child.Type() {
		case "type_identifier":
			if name == "" {
				name = nodeText(child, content)
			}
		case "struct_type":
			kind = KindStruct
			bodyNode = child
		case "interface_type":
			kind = KindInterface
			bodyNode = child
		}
	}
	if name == "" {
		return nil
	}

	sym := &Symbol{
		Name:    name,
		Kind:    kind,
		Line:    startLine(spec),
		EndLine: endLine(spec),
		// The doc comment sits above the enclosing "type" keyword.
		Doc: precedingComment(decl, content),
	}
	if bodyNode != nil {
		sym.Children = goTypeMembers(bodyNode, content, name)
	}
	return sym
}

// goTypeMembers lists struct fields or interface methods.
func goTypeMembers(body *sitter.Node, content []byte, parentName string) []*Symbol {
	var members []*Symbol
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "field_declaration_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				field := child.Child(j)
				if field.Type() == "field_declaration" {
					members = append(members, goFields(field, content, parentName)...)
				}
			}
		case "method_elem", "method_spec":
			if sym := goInterfaceMethod(child, content, parentName); sym != nil {
				members = append(members, sym)
			}
		}
	}
	return members
}

func goFields(node *sitter.Node, content []byte, parentName string) []*Symbol {
	var names []string
	var fieldType string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "field_identifier":
			names = append(names, nodeText(child, content))
		default:
			if len(names) > 0 && fieldType == "" {
				fieldType = nodeText(child, content)
			}
		}
	}
	var fields []*Symbol
	for _, name := range names {
		fields = append(fields, &Symbol{
			Name:      name,
			Kind:      KindField,
			Line:      startLine(node),
			EndLine:   endLine(node),
			Signature: fieldType,
			Parent:    parentName,
		})
	}
	return fields
}

func goInterfaceMethod(node *sitter.Node, content []byte, parentName string) *Symbol {
	var name, params, returns string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "field_identifier":
			name = nodeText(child, content)
		case "parameter_list":
			if params == "" {
				params = nodeText(child, content)
			} else {
				returns = nodeText(child, content)
			}
		case "type_identifier", "pointer_type", "slice_type", "map_type":
			returns = nodeText(child, content)
		}
	}
	if name == "" {
		return nil
	}
	signature := name + params
	if returns != "" {
		signature += " " + returns
	}
	return &Symbol{
		Name:      name,
		Kind:      KindMethod,
		Line:      startLine(node),
		EndLine:   endLine(node),
		Signature: signature,
		Parent:    parentName,
	}
}

// goValueSpecs flattens const or var declarations, grouped or not.
func goValueSpecs(decl *sitter.Node, content []byte, kind Kind) []*Symbol {
	var symbols []*Symbol
	collect := func(spec *sitter.Node) {
		var names []string
		var typeStr string
		for i := 0; i < int(spec.ChildCount()); i++ {
			child := spec.Child(i)
			switch child.Type() {
			case "identifier":
				names = append(names, nodeText(child, content))
			case "type_identifier", "pointer_type", "slice_type", "map_type",
				"channel_type", "qualified_type":
				typeStr = nodeText(child, content)
			}
		}
		for _, name := range names {
			symbols = append(symbols, &Symbol{
				Name:      name,
				Kind:      kind,
				Line:      startLine(spec),
				EndLine:   endLine(spec),
				Signature: typeStr,
				Doc:       precedingComment(decl, content),
			})
		}
	}

	for i := 0; i < int(decl.ChildCount()); i++ {
		child := decl.Child(i)
		switch child.Type() {
		case "var_spec", "const_spec":
			collect(child)
		case "var_spec_list", "const_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() == "var_spec" || spec.Type() == "const_spec" {
					collect(spec)
				}
			}
		}
	}
	return symbols
}
