// wordpiece.go - WordPiece Encoding (BERT)
//
// Greedy Longest-Match von links, Fortsetzungen mit "##". Findet sich fuer
// eine Position kein Praefix, wird das ganze Wort zu [UNK].

package tokenizer

// encodeWordPieceInto haengt die IDs eines Wortes an ids an
func (t *Tokenizer) encodeWordPieceInto(word string, ids []int32) []int32 {
	if word == "" {
		return ids
	}

	// Ganzes Wort im Vokabular (haeufigster Fall)
	if id, ok := t.vocab.Reverse[word]; ok {
		return append(ids, id)
	}

	runes := []rune(word)
	if len(runes) > t.maxWordRunes {
		return append(ids, t.unk)
	}

	mark := len(ids)
	for start := 0; start < len(runes); {
		end := len(runes)
		found := false

		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab.Reverse[sub]; ok {
				ids = append(ids, id)
				found = true
				break
			}
			end--
		}

		if !found {
			return append(ids[:mark], t.unk)
		}
		start = end
	}

	return ids
}
