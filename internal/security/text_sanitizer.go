// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力したタスク本文からマークアップを取り除く。
// bluemondayのStrictPolicyで全タグを除去し、テキストのみを保存対象とする。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去したプレーンテキストを返す。
	// タグの中身のテキストは残し、script・styleの中身は捨てる。
	// 改行・タブ以外の制御文字は除去する。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(text string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去し、エスケープされた文字実体を元の文字に戻す。
// 出力はテンプレート側で改めてエスケープされる。
func (s *textSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	// 文字実体で書かれた制御文字も除去するため前後で2回適用する
	stripped := html.UnescapeString(s.policy.Sanitize(dropControl(text)))
	return dropControl(stripped)
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
