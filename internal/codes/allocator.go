package codes

import (
	"sort"
	"strings"
)

// NoCodesMessage возвращается, когда пул кандидатов исчерпан. Это не ошибка:
// пользователь может расширить диапазон букв/чисел и повторить.
const NoCodesMessage = "No codes available"

// SelectPlaceholder — значение несделанного выбора в dropdown'е; считается пустым.
const SelectPlaceholder = "Select"

// MissingFieldsPlaceholder — подсказка вместо идентификатора, пока не заполнены
// поля identifier domain. Рендерится inline, поэтому строка, а не ошибка.
func MissingFieldsPlaceholder(fields []string) string {
	return "Fill out to generate an ID: " + strings.Join(fields, ", ")
}

// Allocate выбирает идентификатор детерминированно.
//
//   - missingFields непусто → генерация заблокирована, возвращаем подсказку;
//   - desired свободен → принимаем как есть (повторный рендер не перевыдаёт id);
//   - иначе дополняем desired токенами кандидатов: буквы, уже занятые в desired,
//     выкидываются из пула, слияние сортируется по букве, первый свободный — ответ.
//
// Одинаковые входы дают одинаковый ответ: скан пула линейный, без случайности.
func Allocate(desired string, used map[string]struct{}, candidates []string, missingFields []string) string {
	if len(missingFields) > 0 {
		return MissingFieldsPlaceholder(missingFields)
	}

	desired = strings.TrimSpace(desired)
	if desired != "" {
		if _, taken := used[desired]; !taken {
			return desired
		}
	}

	desiredTokens := SplitTokens(desired)
	taken := make(map[byte]struct{}, len(desiredTokens))
	for _, tok := range desiredTokens {
		taken[tok[0]] = struct{}{}
	}

	for _, cand := range candidates {
		candTokens := SplitTokens(cand)
		clash := false
		for _, tok := range candTokens {
			if _, ok := taken[tok[0]]; ok {
				clash = true
				break
			}
		}
		if clash {
			continue
		}

		merged := mergeTokens(desiredTokens, candTokens)
		if _, ok := used[merged]; !ok {
			return merged
		}
	}
	return NoCodesMessage
}

// mergeTokens объединяет сегменты и сортирует по букве. Входные слайсы не трогаем.
func mergeTokens(a, b []string) string {
	all := make([]string, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	sort.Slice(all, func(i, j int) bool { return all[i][0] < all[j][0] })
	return strings.Join(all, "-")
}
