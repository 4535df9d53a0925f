package annotate

import "fmt"

const summarizePrompt = `以下のテキストは、ある日のチャットチャンネルに書き込まれたメモの内容です。
この内容について、次の3つのタスクを実行してください。

1. 要約: 全体を200字程度の日本語で簡潔に要約してください。
2. タグ抽出: 内容から重要なキーワードを5つ以内選び、` + "`#キーワード`" + ` の形式で列挙してください。
3. タグ解説: 抽出した各キーワードについて、メモの内容と一般的な知識をもとに500字程度で解説してください。解説の冒頭には必ず [[%[1]s]] という形式で日付へのリンクを入れてください。関連する外部リンクや参考文献があれば含めてください。各キーワードの解説の区切りには --- を入れてください。

[出力フォーマット]
[ここに要約]
---
#キーワード1 #キーワード2 #キーワード3
---
[TAG:キーワード1]
[[%[1]s]]
ここに解説文
---
[TAG:キーワード2]
[[%[1]s]]
ここに解説文

[入力テキスト]
%[2]s
`

const supplementPrompt = `以下のメモの内容について、簡潔な補足や関連情報を100文字から500文字程度の日本語で記述してください。
重要なキーワードを取り上げ、それを簡潔に説明する形式が望ましいです。
%[2]s
[入力テキスト]
%[1]s
`

const topicsPrompt = `以下のテキストから、調べる価値のある重要なトピックやキーワードを5つ以内で抽出してください。
1行に1つずつ、キーワードのみを出力してください。番号や記号は付けないでください。

[入力テキスト]
%s
`

const topicSummaryPrompt = `「%s」について、500文字程度の日本語で概要を説明してください。
定義、背景、主な用途や関連する話題を含めてください。
`

func buildSummarizePrompt(memo, date string) string {
	return fmt.Sprintf(summarizePrompt, date, memo)
}

func buildSupplementPrompt(text, reference string) string {
	extra := ""
	if reference != "" {
		extra = "\n[参考情報]\n" + reference + "\n"
	}
	return fmt.Sprintf(supplementPrompt, text, extra)
}

func buildTopicsPrompt(text string) string {
	return fmt.Sprintf(topicsPrompt, text)
}

func buildTopicSummaryPrompt(topic string) string {
	return fmt.Sprintf(topicSummaryPrompt, topic)
}
