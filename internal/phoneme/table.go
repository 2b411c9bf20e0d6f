package phoneme

import (
	"context"
	"fmt"
)

// vocab is the Kokoro symbol inventory; a symbol's token ID is its index.
// Index 0 is the pad symbol, which doubles as the sentinel the backend frames
// sequences with.
const vocab = "$;:,.!?¡¿—…\"«»“” abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞ᵻ"

// TableTokenizer maps pre-phonemized IPA text straight onto the vocabulary.
// Symbols outside the vocabulary are skipped.
type TableTokenizer struct {
	ids map[rune]int64
}

func NewTableTokenizer() *TableTokenizer {
	ids := make(map[rune]int64)
	for i, r := range []rune(vocab) {
		ids[r] = int64(i)
	}
	return &TableTokenizer{ids: ids}
}

func (t *TableTokenizer) Tokenize(ctx context.Context, text string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := make([]int64, 0, len(text))
	for _, r := range text {
		id, ok := t.ids[r]
		if !ok {
			continue
		}
		tokens = append(tokens, id)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokenizable symbols in %q", text)
	}
	return tokens, nil
}
