package service

import "fmt"

// Messages is the user-facing copy of the verification conversation.
type Messages struct {
	AlreadyMember      string
	AskPhone           string
	AskHandle          string
	AskImage           string
	Processing         string
	Success            string
	FailureFormat      string
	IngestFailedReason string
	AppendFailedReason string
}

// DefaultMessages returns the Traditional Chinese copy the bot ships with.
func DefaultMessages() Messages {
	return Messages{
		AlreadyMember:      "您已是會員，若要修改請洽客服。",
		AskPhone:           "開始會員驗證，請輸入您的手機號碼：",
		AskHandle:          "收到！接著請輸入您的 LINE ID：",
		AskImage:           "最後一步，請上傳您的個人檔案截圖：",
		Processing:         "正在處理資料並寫入試算表，請稍候...",
		Success:            "✅ 驗證成功！資料已寫入系統，請等待管理員審核。",
		FailureFormat:      "❌ 寫入資料時發生錯誤（%s），請重新上傳截圖或聯絡管理員。",
		IngestFailedReason: "圖片處理失敗",
		AppendFailedReason: "資料寫入失敗",
	}
}

// Failure renders the failure notice for reason.
func (m Messages) Failure(reason string) string {
	return fmt.Sprintf(m.FailureFormat, reason)
}
