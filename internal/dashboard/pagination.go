package dashboard

// maxPlainPages はこのページ数以下なら省略記号なしで全ページを並べる。
const maxPlainPages = 7

// PageLabel はページネーションに並ぶ1要素。Ellipsisがtrueの場合は省略記号を表す。
type PageLabel struct {
	Number   int
	Ellipsis bool
}

// Pages は現在ページと総ページ数から表示するページラベルを順に返す。
//
// 総ページ数が7以下なら1..totalを全て返す。それ以外は、先頭ページ、
// current>3なら省略記号、max(2,current-1)..min(total-1,current+1)の範囲、
// current<total-2なら省略記号、最終ページの順に並べる。
func Pages(current, total int) []PageLabel {
	if total <= 0 {
		return nil
	}

	if total <= maxPlainPages {
		labels := make([]PageLabel, 0, total)
		for i := 1; i <= total; i++ {
			labels = append(labels, PageLabel{Number: i})
		}
		return labels
	}

	labels := []PageLabel{{Number: 1}}
	if current > 3 {
		labels = append(labels, PageLabel{Ellipsis: true})
	}

	start := max(2, current-1)
	end := min(total-1, current+1)
	for i := start; i <= end; i++ {
		labels = append(labels, PageLabel{Number: i})
	}

	if current < total-2 {
		labels = append(labels, PageLabel{Ellipsis: true})
	}
	return append(labels, PageLabel{Number: total})
}

// Pagination はページ移動UIの状態を持たないコントロール。
// 現在ページと総ページ数は親が保持し、移動要求はOnChangeで親に通知する。
type Pagination struct {
	Current  int
	Total    int
	OnChange func(page int)
}

// Labels は表示するページラベルを返す。
func (p Pagination) Labels() []PageLabel {
	return Pages(p.Current, p.Total)
}

// Visible はページネーションを表示するかを返す。総ページ数0では何も表示しない。
func (p Pagination) Visible() bool {
	return p.Total > 0
}

// PrevDisabled は「前へ」が無効か（先頭ページ）を返す。
func (p Pagination) PrevDisabled() bool {
	return p.Current <= 1
}

// NextDisabled は「次へ」が無効か（最終ページ）を返す。
func (p Pagination) NextDisabled() bool {
	return p.Current >= p.Total
}

// PrevPage は「前へ」の移動先ページを返す。
func (p Pagination) PrevPage() int {
	return p.Current - 1
}

// NextPage は「次へ」の移動先ページを返す。
func (p Pagination) NextPage() int {
	return p.Current + 1
}

// Previous は前のページへの移動を通知する。
func (p Pagination) Previous() {
	if !p.PrevDisabled() {
		p.Select(p.Current - 1)
	}
}

// Next は次のページへの移動を通知する。
func (p Pagination) Next() {
	if !p.NextDisabled() {
		p.Select(p.Current + 1)
	}
}

// Select は指定ページへの移動を通知する。範囲外のページは無視する。
func (p Pagination) Select(page int) {
	if p.OnChange == nil || page < 1 || page > p.Total {
		return
	}
	p.OnChange(page)
}
