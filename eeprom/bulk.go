package eeprom

import (
	"context"
	"fmt"
	"slices"

	"github.com/moffa90/go-ch341prog/memory"
)

// ProgressFunc receives the number of bytes processed so far and the total.
// It is called after every page and must return quickly.
type ProgressFunc func(done, total int)

func report(fn ProgressFunc, done, total int) {
	if fn != nil {
		fn(done, total)
	}
}

// touchedPages returns the page offsets that hold at least one specified
// byte of img, rejecting images that reach past the array.
func (d *Device) touchedPages(img *memory.Image) ([]int, error) {
	if hi, ok := img.Max(); ok && int64(hi) >= int64(d.profile.Size) {
		return nil, &RangeError{Offset: int(hi), Length: 1, Size: d.profile.Size}
	}

	ps := d.profile.PageSize
	var pages []int
	for _, off := range img.Offsets() {
		page := int(off) / ps * ps
		if n := len(pages); n == 0 || pages[n-1] != page {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

// WriteRange programs every page touched by img. Pages that img specifies
// only partly are read first so the unspecified bytes keep their content.
// With verify set each page is read back and compared.
//
// The context is checked between pages only; a page write is never
// interrupted. On failure the returned *PartialError tells how many bytes
// were completed.
func (d *Device) WriteRange(ctx context.Context, img *memory.Image, verify bool, progress ProgressFunc) error {
	pages, err := d.touchedPages(img)
	if err != nil {
		return err
	}
	return d.programPages(ctx, pages, progress, func(page int) ([]byte, error) {
		return d.mergePage(ctx, img, page)
	}, verify)
}

// OverwritePages programs every page touched by img without reading it
// first. Bytes img does not specify are written as fill.
func (d *Device) OverwritePages(ctx context.Context, img *memory.Image, fill byte, verify bool, progress ProgressFunc) error {
	pages, err := d.touchedPages(img)
	if err != nil {
		return err
	}
	return d.programPages(ctx, pages, progress, func(page int) ([]byte, error) {
		return img.Bytes(uint32(page), d.profile.PageSize, fill), nil
	}, verify)
}

// EraseChip writes 0xFF to every page.
func (d *Device) EraseChip(ctx context.Context, progress ProgressFunc) error {
	ps := d.profile.PageSize
	blank := slices.Repeat([]byte{0xFF}, ps)

	pages := make([]int, 0, d.profile.Pages())
	for off := 0; off < d.profile.Size; off += ps {
		pages = append(pages, off)
	}
	return d.programPages(ctx, pages, progress, func(int) ([]byte, error) {
		return blank, nil
	}, false)
}

// programPages writes the content returned by fill to each page in turn.
func (d *Device) programPages(ctx context.Context, pages []int, progress ProgressFunc,
	fill func(page int) ([]byte, error), verify bool) error {
	ps := d.profile.PageSize
	total := len(pages) * ps
	done := 0

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return &PartialError{Done: done, Total: total, Err: err}
		}

		data, err := fill(page)
		if err != nil {
			return &PartialError{Done: done, Total: total, Err: err}
		}
		if err := d.WritePage(ctx, page, data); err != nil {
			return &PartialError{Done: done, Total: total, Err: err}
		}
		if verify {
			if err := d.comparePage(ctx, page, data); err != nil {
				return &PartialError{Done: done, Total: total, Err: err}
			}
		}

		done += ps
		d.opts.logger.Debug("page written", "offset", fmt.Sprintf("0x%04X", page), "done", done, "total", total)
		report(progress, done, total)
	}
	return nil
}

// mergePage returns the full content of a page with img's bytes applied.
func (d *Device) mergePage(ctx context.Context, img *memory.Image, page int) ([]byte, error) {
	ps := d.profile.PageSize
	complete := true
	for i := range ps {
		if _, ok := img.Get(uint32(page + i)); !ok {
			complete = false
			break
		}
	}
	if complete {
		return img.Bytes(uint32(page), ps, 0xFF), nil
	}

	cur, err := d.ReadRange(ctx, page, ps)
	if err != nil {
		return nil, err
	}
	for i := range cur {
		if v, ok := img.Get(uint32(page + i)); ok {
			cur[i] = v
		}
	}
	return cur, nil
}

func (d *Device) comparePage(ctx context.Context, page int, want []byte) error {
	got, err := d.ReadRange(ctx, page, len(want))
	if err != nil {
		return err
	}
	for i := range want {
		if got[i] != want[i] {
			return &VerifyMismatchError{Offset: page + i, Expected: want[i], Actual: got[i]}
		}
	}
	return nil
}

// Verify compares the chip with every byte img specifies, page by page.
func (d *Device) Verify(ctx context.Context, img *memory.Image, progress ProgressFunc) error {
	pages, err := d.touchedPages(img)
	if err != nil {
		return err
	}

	ps := d.profile.PageSize
	total := len(pages) * ps
	done := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return &PartialError{Done: done, Total: total, Err: err}
		}

		got, err := d.ReadRange(ctx, page, ps)
		if err != nil {
			return &PartialError{Done: done, Total: total, Err: err}
		}
		for i, v := range got {
			if want, ok := img.Get(uint32(page + i)); ok && want != v {
				return &PartialError{Done: done, Total: total,
					Err: &VerifyMismatchError{Offset: page + i, Expected: want, Actual: v}}
			}
		}

		done += ps
		report(progress, done, total)
	}
	return nil
}

// Dump reads n bytes from off page by page, checking the context between
// pages. On failure it returns the bytes read so far along with a
// *PartialError.
func (d *Device) Dump(ctx context.Context, off, n int, progress ProgressFunc) ([]byte, error) {
	if err := d.checkRange(off, n); err != nil {
		return nil, err
	}

	ps := d.profile.PageSize
	out := make([]byte, 0, n)
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return out, &PartialError{Done: len(out), Total: n, Err: err}
		}

		pos := off + len(out)
		k := min(n-len(out), (pos/ps+1)*ps-pos)
		b, err := d.ReadRange(ctx, pos, k)
		if err != nil {
			return out, &PartialError{Done: len(out), Total: n, Err: err}
		}
		out = append(out, b...)
		report(progress, len(out), n)
	}
	return out, nil
}

// ReadImage reads the whole array into an image.
func (d *Device) ReadImage(ctx context.Context, progress ProgressFunc) (*memory.Image, error) {
	data, err := d.Dump(ctx, 0, d.profile.Size, progress)
	img := memory.FromBytes(0, data)
	return img, err
}
