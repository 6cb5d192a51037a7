// Package persona drives the completion service for in-character chat
// replies and for Big Five extraction from a finished conversation.
package persona

import (
	"fmt"
	"strings"

	"github.com/Haku929/Amiro-sub000/internal/big5"
	"github.com/Haku929/Amiro-sub000/internal/domain"
)

type axisText struct {
	label  string
	levels map[big5.Level]string
}

// Storage order [o,c,e,a,n].
var axisTexts = [5]axisText{
	{label: "開放性", levels: map[big5.Level]string{
		big5.LevelHigh:   "好奇心が強く、新しい体験や突飛なアイデアを面白がる",
		big5.LevelMedium: "新しいことにも慣れたことにも、状況に応じて向き合える",
		big5.LevelLow:    "慣れ親しんだものを好み、地に足のついた現実的な考え方をする",
	}},
	{label: "誠実性", levels: map[big5.Level]string{
		big5.LevelHigh:   "計画的で几帳面、約束や段取りを大切にする",
		big5.LevelMedium: "必要なところはきちんとしつつ、ほどよく肩の力が抜けている",
		big5.LevelLow:    "気分やその場の流れを大事にし、細かい計画には縛られない",
	}},
	{label: "外向性", levels: map[big5.Level]string{
		big5.LevelHigh:   "社交的でエネルギッシュ、自分から話題を広げる",
		big5.LevelMedium: "人と話すのも一人の時間も、どちらも楽しめる",
		big5.LevelLow:    "物静かで控えめ、言葉を選んでゆっくり話す",
	}},
	{label: "協調性", levels: map[big5.Level]string{
		big5.LevelHigh:   "思いやりがあり、相手の気持ちに寄り添うのが自然",
		big5.LevelMedium: "相手を尊重しつつ、自分の意見もきちんと伝える",
		big5.LevelLow:    "率直で遠慮がなく、思ったことをはっきり言う",
	}},
	{label: "神経症傾向", levels: map[big5.Level]string{
		big5.LevelHigh:   "感受性が強く、不安や心配を感じやすい",
		big5.LevelMedium: "ときどき揺れることはあっても、おおむね落ち着いている",
		big5.LevelLow:    "情緒が安定していて、多少のことでは動じない",
	}},
}

// DescribeVector renders each axis of v as a qualitative line.
func DescribeVector(v big5.Vector) string {
	var b strings.Builder
	for i, level := range v.Bands() {
		ax := axisTexts[i]
		fmt.Fprintf(&b, "- %s（%s）: %s\n", ax.label, level, ax.levels[level])
	}
	return b.String()
}

// BuildReplyInstruction returns the system instruction for an in-character
// reply in situation, played by a persona matching target.
func BuildReplyInstruction(situation string, target big5.Vector) string {
	var b strings.Builder
	b.WriteString("あなたはマッチングアプリ「Amiro」で、ユーザーと会話するひとりの人物を演じます。\n\n")
	b.WriteString("## シチュエーション\n")
	b.WriteString(strings.TrimSpace(situation))
	b.WriteString("\n\n## あなたの性格\n")
	b.WriteString(DescribeVector(target))
	b.WriteString("\n## 返答のルール\n")
	b.WriteString("1. まず相手の発言や気持ちを受け止める。\n")
	b.WriteString("2. 次に、上の性格にふさわしい形で自分の考えや経験を少しだけ打ち明ける。\n")
	b.WriteString("3. 最後に、相手に質問を返して会話をつなげる。\n")
	b.WriteString("全体で2文程度、話し言葉で返すこと。AIであることや性格の数値には触れないこと。\n")
	return b.String()
}

const extractionInstruction = `あなたは会話ログから話者の性格を推定する心理分析エンジンです。
以下の会話の「ユーザー」の発言だけを根拠に、Big Five の5軸をそれぞれ 0 から 1 の実数で推定してください。

- o (開放性): 好奇心、新しい体験への開かれ具合
- c (誠実性): 計画性、自己管理、責任感
- e (外向性): 社交性、活発さ、刺激を求める度合い
- a (協調性): 思いやり、協力的な態度
- n (神経症傾向): 不安や気分の揺れやすさ

出力は厳密な JSON のみとし、次の2つのフィールドだけを含めてください。
{"selfVector":{"o":0.0,"c":0.0,"e":0.0,"a":0.0,"n":0.0},"personaSummary":"..."}
personaSummary はこの人物の人柄を60文字程度の日本語で表した一文にしてください。
説明文やコードブロックは付けないでください。`

// Transcript speaker labels.
const (
	transcriptUserLabel  = "ユーザー"
	transcriptModelLabel = "AI"
)

// RenderTranscript renders a conversation in turn order, one line per message.
func RenderTranscript(conv domain.Conversation) string {
	var b strings.Builder
	for _, m := range conv {
		speaker := transcriptUserLabel
		if m.Role == domain.RoleModel {
			speaker = transcriptModelLabel
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(m.Content))
	}
	return b.String()
}
