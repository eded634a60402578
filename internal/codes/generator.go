package codes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Границы кодового пространства: буквы A..J, числа 1..10.
const (
	MinLetter = 'A'
	MaxLetter = 'J'
	MinNumber = 1
	MaxNumber = 10

	// Жёсткий потолок на размер пула кандидатов ДО фильтрации по блок-листу.
	// Полное пространство (11^10 - 1) комбинаций — генерить его целиком нельзя.
	MaxCandidates = 22000
)

// ErrCapacityExceeded — пул кандидатов превысил потолок. Это abort, не truncation:
// частичный пул вводил бы в заблуждение и ломал детерминизм аллокатора.
var ErrCapacityExceeded = errors.New("candidate pool exceeds capacity limit")

// Token собирает сегмент вида "B7" из буквы и числа.
func Token(letter byte, number int) string {
	return string(letter) + strconv.Itoa(number)
}

// SplitTokens делит идентификатор "A1-B7" на сегменты, пустые отбрасывает.
func SplitTokens(id string) []string {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	parts := strings.Split(id, "-")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Generate перечисляет все допустимые идентификаторы для диапазона
// букв A..maxLetter и чисел 1..maxNumber, минус кандидаты с токенами из блок-листа.
//
// Каждая буква участвует в идентификаторе не более одного раза; сегменты внутри
// идентификатора отсортированы по букве (расширяем только буквами строго правее
// последней — каждое подмножество возникает ровно один раз). Порядок выдачи —
// детерминированный preorder DFS: A1, A1-B1, A1-B1-C1, ...
func Generate(maxLetter byte, maxNumber int, blocklist map[string]struct{}) ([]string, error) {
	if maxLetter < MinLetter || maxLetter > MaxLetter {
		return nil, fmt.Errorf("max letter %q out of range %c..%c", string(maxLetter), MinLetter, MaxLetter)
	}
	if maxNumber < MinNumber || maxNumber > MaxNumber {
		return nil, fmt.Errorf("max number %d out of range %d..%d", maxNumber, MinNumber, MaxNumber)
	}

	letters := int(maxLetter-MinLetter) + 1

	// build добавляет к prefix токены букв с индексами start.. и копит кандидатов.
	// prefix не мутируется — каждый кандидат собирается строкой заново.
	var all []string
	var build func(prefix string, start int) error
	build = func(prefix string, start int) error {
		for i := start; i < letters; i++ {
			letter := byte(MinLetter + i)
			for n := MinNumber; n <= maxNumber; n++ {
				cand := Token(letter, n)
				if prefix != "" {
					cand = prefix + "-" + cand
				}
				all = append(all, cand)
				// потолок считается до фильтрации — abort сразу
				if len(all) > MaxCandidates {
					return ErrCapacityExceeded
				}
				if err := build(cand, i+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := build("", 0); err != nil {
		return nil, err
	}

	if len(blocklist) == 0 {
		return all, nil
	}

	// фильтр: кандидат выбывает, если ЛЮБОЙ его сегмент в блок-листе
	out := make([]string, 0, len(all))
	for _, cand := range all {
		blocked := false
		for _, tok := range SplitTokens(cand) {
			if _, ok := blocklist[tok]; ok {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, cand)
		}
	}
	return out, nil
}
