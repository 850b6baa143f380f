package parse

// kanjiDigits covers the units used by the bounded Sino-Japanese decoder.
var kanjiDigits = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// KanjiNumber decodes a Sino-Japanese numeral using a units/tens
// decomposition. Supported forms are 一..九, 十, 十五, 二十, 二十三 and so
// on; the supported range is 1-99. Anything else reports false.
func KanjiNumber(s string) (int, bool) {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0, false
	}

	tens, units := 0, 0
	seenTensMarker := false
	for i, r := range runes {
		switch {
		case r == '十':
			if seenTensMarker {
				return 0, false
			}
			seenTensMarker = true
			if units == 0 {
				tens = 1 // bare 十 is 10
			} else {
				tens = units
			}
			units = 0
		case kanjiDigits[r] != 0:
			if units != 0 {
				return 0, false
			}
			units = kanjiDigits[r]
			if !seenTensMarker && i != 0 {
				return 0, false
			}
		default:
			return 0, false
		}
	}

	n := tens*10 + units
	if n < 1 || n > 99 {
		return 0, false
	}
	return n, true
}
