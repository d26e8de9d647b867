// Package pagination walks paginated HTML listings to completion.
//
// A listing page carries a marker element (li.page) whose data-last_page
// attribute says whether more pages follow. Paginate fetches page after
// page, accumulating items in fetch order, and computes the next request
// parameter with a NextParam strategy: CursorParam takes the cursor of the
// last accumulated item, PageNumberParam increments the page number found
// on the marker. Between non-final fetches it sleeps for
// delay + uniform(0, spread).
//
// A page without the marker element is a fatal ErrMissingPageElement.
package pagination
