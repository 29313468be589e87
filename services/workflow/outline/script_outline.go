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
	sitter "github.com/smacker/go-tree-sitter"
)

// outlineScript walks a JavaScript or TypeScript file. The two grammars
// share declaration node names, so a single walker covers .js/.jsx and
// .ts/.tsx; TypeScript-only nodes (interfaces, type aliases, enums)
// simply never appear for JavaScript input.
func outlineScript(root *sitter.Node, content []byte) []*Symbol {
	symbols := []*Symbol{}
	for i := 0; i < int(root.ChildCount()); i++ {
		symbols = append(symbols, scriptDeclaration(root.Child(i), content)...)
	}
	return symbols
}

// scriptDeclaration dispatches one top-level node, descending through
// export statements to the declaration inside.
func scriptDeclaration(node *sitter.Node, content []byte) []*Symbol {
	switch node.Type() {
	case "export_statement":
		var symbols []*Symbol
		for i := 0; i < int(node.ChildCount()); i++ {
			symbols = append(symbols, scriptDeclaration(node.Child(i), content)...)
		}
		return symbols
	case "function_declaration", "generator_function_declaration":
		if sym := scriptFunction(node, content); sym != nil {
			return []*Symbol{sym}
		}
	case "class_declaration", "abstract_class_declaration":
		if sym := scriptClass(node, content); sym != nil {
			return []*Symbol{sym}
		}
	case "interface_declaration":
		if sym := scriptInterface(node, content); sym != nil {
			return []*Symbol{sym}
		}
	case "type_alias_declaration":
		if sym := scriptTypeAlias(node, content); sym != nil {
			return []*Symbol{sym}
		}
	case "enum_declaration":
		if sym := scriptEnum(node, content); sym != nil {
			return []*Symbol{sym}
		}
	case "lexical_declaration", "variable_declaration":
		return scriptVariables(node, content)
	}
	return nil
}

func scriptFunction(node *sitter.Node, content []byte) *Symbol {
	var name, params, returns string
	isAsync := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "async":
			isAsync = true
		case "identifier":
			name = nodeText(child, content)
		case "formal_parameters":
			params = nodeText(child, content)
		case "type_annotation":
			returns = nodeText(child, content)
		}
	}
	if name == "" {
		return nil
	}
	signature := "function " + name + params + returns
	if isAsync {
		signature = "async " + signature
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

func scriptClass(node *sitter.Node, content []byte) *Symbol {
	var name string
	var body *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "type_identifier", "identifier":
			if name == "" {
				name = nodeText(child, content)
			}
		case "class_body":
			body = child
		}
	}
	if name == "" {
		return nil
	}
	sym := &Symbol{
		Name:    name,
		Kind:    KindClass,
		Line:    startLine(node),
		EndLine: endLine(node),
		Doc:     precedingComment(node, content),
	}
	if body != nil {
		sym.Children = scriptClassMembers(body, content, name)
	}
	return sym
}

func scriptClassMembers(body *sitter.Node, content []byte, className string) []*Symbol {
	var members []*Symbol
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "method_definition":
			if sym := scriptMethod(child, content, className); sym != nil {
				members = append(members, sym)
			}
		case "public_field_definition", "field_definition":
			if sym := scriptField(child, content, className); sym != nil {
				members = append(members, sym)
			}
		}
	}
	return members
}

func scriptMethod(node *sitter.Node, content []byte, className string) *Symbol {
	var name, params, returns string
	isAsync := false
	isStatic := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "async":
			isAsync = true
		case "static":
			isStatic = true
		case "property_identifier":
			name = nodeText(child, content)
		case "formal_parameters":
			params = nodeText(child, content)
		case "type_annotation":
			returns = nodeText(child, content)
		}
	}
	if name == "" {
		return nil
	}
	signature := name + params + returns
	if isAsync {
		signature = "async " + signature
	}
	if isStatic {
		signature = "static " + signature
	}
	return &Symbol{
		Name:      name,
		Kind:      KindMethod,
		Line:      startLine(node),
		EndLine:   endLine(node),
		Signature: signature,
		Doc:       precedingComment(node, content),
		Parent:    className,
	}
}

func scriptField(node *sitter.Node, content []byte, className string) *Symbol {
	var name, typeStr string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "property_identifier":
			name = nodeText(child, content)
		case "type_annotation":
			typeStr = nodeText(child, content)
		}
	}
	if name == "" {
		return nil
	}
	return &Symbol{
		Name:      name,
		Kind:      KindField,
		Line:      startLine(node),
		EndLine:   endLine(node),
		Signature: typeStr,
		Parent:    className,
	}
}

func scriptInterface(node *sitter.Node, content []byte) *Symbol {
	var name string
	var body *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "type_identifier":
			name = nodeText(child, content)
		case "interface_body", "object_type":
			body = child
		}
	}
	if name == "" {
		return nil
	}
	sym := &Symbol{
		Name:    name,
		Kind:    KindInterface,
		Line:    startLine(node),
		EndLine: endLine(node),
		Doc:     precedingComment(node, content),
	}
	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			member := body.Child(i)
			switch member.Type() {
			case "property_signature":
				if field := scriptField(member, content, name); field != nil {
					sym.Children = append(sym.Children, field)
				}
			case "method_signature":
				if method := scriptMethod(member, content, name); method != nil {
					sym.Children = append(sym.Children, method)
				}
			}
		}
	}
	return sym
}

func scriptTypeAlias(node *sitter.Node, content []byte) *Symbol {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "type_identifier" {
			return &Symbol{
				Name:    nodeText(child, content),
				Kind:    KindType,
				Line:    startLine(node),
				EndLine: endLine(node),
				Doc:     precedingComment(node, content),
			}
		}
	}
	return nil
}

func scriptEnum(node *sitter.Node, content []byte) *Symbol {
	var name string
	var body *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			name = nodeText(child, content)
		case "enum_body":
			body = child
		}
	}
	if name == "" {
		return nil
	}
	sym := &Symbol{
		Name:    name,
		Kind:    KindEnum,
		Line:    startLine(node),
		EndLine: endLine(node),
		Doc:     precedingComment(node, content),
	}
	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			member := body.Child(i)
			memberName := ""
			switch member.Type() {
			case "property_identifier":
				memberName = nodeText(member, content)
			case "enum_assignment":
				for j := 0; j < int(member.ChildCount()); j++ {
					if member.Child(j).Type() == "property_identifier" {
						memberName = nodeText(member.Child(j), content)
					}
				}
			}
			if memberName != "" {
				sym.Children = append(sym.Children, &Symbol{
					Name:    memberName,
					Kind:    KindConstant,
					Line:    startLine(member),
					EndLine: endLine(member),
					Parent:  name,
				})
			}
		}
	}
	return sym
}

// scriptVariables handles const/let/var declarations. A declarator
// whose value is a function expression outlines as a function; const
// bindings outline as constants, the rest as variables.
func scriptVariables(node *sitter.Node, content []byte) []*Symbol {
	kind := KindVariable
	if node.ChildCount() > 0 && node.Child(0).Type() == "const" {
		kind = KindConstant
	}

	var symbols []*Symbol
	for i := 0; i < int(node.ChildCount()); i++ {
		decl := node.Child(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		var name, typeStr string
		isFunc := false
		for j := 0; j < int(decl.ChildCount()); j++ {
			child := decl.Child(j)
			switch child.Type() {
			case "identifier":
				if name == "" {
					name = nodeText(child, content)
				}
			case "type_annotation":
				typeStr = nodeText(child, content)
			case "arrow_function", "function_expression", "function":
				isFunc = true
			}
		}
		if name == "" {
			continue
		}
		sym := &Symbol{
			Name:      name,
			Kind:      kind,
			Line:      startLine(decl),
			EndLine:   endLine(decl),
			Signature: typeStr,
			Doc:       precedingComment(node, content),
		}
		if isFunc {
			sym.Kind = KindFunction
		}
		symbols = append(symbols, sym)
	}
	return symbols
}
