// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package answers

func copyResponses(resps []Response) []Response {
	if resps == nil {
		return nil
	}

	res := make([]Response, len(resps))
	for i, r := range resps {
		res[i] = Response{Question: r.Question, Answer: copyAnswer(r.Answer)}
	}

	return res
}

func copyAnswer(v any) any {
	switch val := v.(type) {
	case []string:
		return append([]string{}, val...)

	case []Response:
		return copyResponses(val)

	case []any:
		res := make([]any, len(val))
		for i, e := range val {
			res[i] = copyAnswer(e)
		}
		return res

	case map[string]any:
		res := make(map[string]any, len(val))
		for k, e := range val {
			res[k] = copyAnswer(e)
		}
		return res

	default:
		return v
	}
}
